package gmp

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Node GMP 响应的通用元素树
// 所有访问方法对 nil 接收者安全，缺失路径返回零值
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// ParseNode 把 XML 文档解析为元素树，返回根元素
func ParseNode(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
		text  []*strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end element %s", t.Name.Local)
			}
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}

	if root == nil {
		return nil, errors.New("empty xml document")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element %s", stack[len(stack)-1].Name)
	}
	return root, nil
}

// Attr 返回属性值
func (n *Node) Attr(key string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[key]
}

// Child 返回第一个同名子元素
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed 返回全部同名子元素，单个或多个都返回切片
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path 逐级查找第一个匹配的子元素
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ChildText 返回路径末端元素的文本
func (n *Node) ChildText(names ...string) string {
	if c := n.Path(names...); c != nil {
		return c.Text
	}
	return ""
}

// MarshalJSON 输出为 "@属性"/"#text"/子元素名 的嵌套对象，同名子元素合并为数组
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toValue())
}

func (n *Node) toValue() interface{} {
	if n == nil {
		return nil
	}
	if len(n.Attrs) == 0 && len(n.Children) == 0 {
		if n.Text == "" {
			return nil
		}
		return n.Text
	}

	m := make(map[string]interface{}, len(n.Attrs)+len(n.Children)+1)
	for k, v := range n.Attrs {
		m["@"+k] = v
	}
	counts := make(map[string]int, len(n.Children))
	for _, c := range n.Children {
		counts[c.Name]++
	}
	for _, c := range n.Children {
		v := c.toValue()
		if counts[c.Name] > 1 {
			arr, _ := m[c.Name].([]interface{})
			m[c.Name] = append(arr, v)
			continue
		}
		m[c.Name] = v
	}
	if n.Text != "" {
		m["#text"] = n.Text
	}
	return m
}
