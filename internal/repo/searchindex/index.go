/**
 * 仓库:漏洞检索索引
 * @author: sun977
 * @date: 2025.11.06
 * @description: 漏洞文档的落地端，按记录 id upsert，重复入库覆盖同一文档
 * @func: Index 接口、固定映射、Elasticsearch/数据库 两种实现
 */
package searchindex

import (
	"context"
	"fmt"

	"neogvm/internal/config"
	"neogvm/internal/model/gvm"

	"gorm.io/gorm"
)

// Index 检索索引
type Index interface {
	// EnsureIndex 索引不存在时按映射创建，已存在则不做任何修改
	EnsureIndex(ctx context.Context, name string, mapping map[string]interface{}) (created bool, err error)
	// Upsert 以 id 为文档主键写入
	Upsert(ctx context.Context, index, id string, doc *gvm.IndexDocument) error
}

// VulnerabilityMapping 漏洞索引的固定映射
func VulnerabilityMapping() map[string]interface{} {
	kw := map[string]interface{}{"type": "keyword"}
	text := map[string]interface{}{"type": "text"}
	float := map[string]interface{}{"type": "float"}
	date := map[string]interface{}{"type": "date"}

	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":                kw,
				"title":             text,
				"creation_time":     date,
				"modification_time": date,
				"host": map[string]interface{}{
					"properties": map[string]interface{}{
						"hostname": kw,
						"ip":       map[string]interface{}{"type": "ip"},
					},
				},
				"port": kw,
				"nvt": map[string]interface{}{
					"properties": map[string]interface{}{
						"type":           kw,
						"name":           text,
						"family":         kw,
						"cvss_base":      float,
						"tags":           text,
						"solution":       text,
						"severity_score": float,
						"severity_value": kw,
					},
				},
				"threat":      kw,
				"severity":    float,
				"qod":         map[string]interface{}{"type": "integer"},
				"description": text,
			},
		},
	}
}

// New 按配置创建索引后端
func New(cfg *config.IndexConfig, db *gorm.DB) (Index, error) {
	switch cfg.Backend {
	case "elasticsearch", "":
		return NewElasticIndex(cfg)
	case "database":
		if db == nil {
			return nil, fmt.Errorf("database index requires a database connection")
		}
		return NewGormIndex(db)
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}
