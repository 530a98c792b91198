/*
 * @author: sun977
 * @date: 2025.11.10
 * @description: 主程序入口
 */

package main

func main() {
	Execute()
}
