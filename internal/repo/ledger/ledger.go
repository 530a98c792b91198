/**
 * 仓库:入库账本
 * @author: sun977
 * @date: 2025.11.05
 * @description: 记录已入库的解析结果文件名，保证同一文件至多入库一次
 * @func: Ledger 接口及 文件/Redis/数据库 三种实现
 */
package ledger

import (
	"context"
	"fmt"

	"neogvm/internal/config"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Ledger 已入库文件名集合，只增不减
type Ledger interface {
	// Load 返回当前已记录的全部文件名
	Load(ctx context.Context) (map[string]struct{}, error)
	// Record 追加一个文件名，已存在时不报错
	Record(ctx context.Context, name string) error
}

// New 按配置创建账本，rdb/db 仅在对应后端下使用
func New(cfg *config.Config, rdb *redis.Client, db *gorm.DB) (Ledger, error) {
	switch cfg.Ledger.Backend {
	case "file", "":
		return NewFileLedger(cfg.Pipeline.LedgerFile), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis ledger requires a redis connection")
		}
		return NewRedisLedger(rdb, cfg.Ledger.RedisKey), nil
	case "database":
		if db == nil {
			return nil, fmt.Errorf("database ledger requires a database connection")
		}
		return NewGormLedger(db)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}
