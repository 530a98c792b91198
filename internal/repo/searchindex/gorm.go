package searchindex

import (
	"context"
	"encoding/json"
	"time"

	"neogvm/internal/model/gvm"
	"neogvm/internal/model/system"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexedDocument 数据库后端的文档表，(index_name, doc_id) 唯一
type IndexedDocument struct {
	IndexName string    `json:"index_name" gorm:"primaryKey;size:128"`
	DocID     string    `json:"doc_id" gorm:"primaryKey;size:128"`
	Threat    string    `json:"threat" gorm:"size:32;index"`
	Severity  *float64  `json:"severity"`
	HostIP    string    `json:"host_ip" gorm:"size:64;index"`
	Body      string    `json:"body" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (IndexedDocument) TableName() string {
	return "vulnerability_documents"
}

// indexDefinition 已创建的索引及其映射
type indexDefinition struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Mapping   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (indexDefinition) TableName() string {
	return "vulnerability_indexes"
}

// GormIndex 无 Elasticsearch 时的落地实现
type GormIndex struct {
	db *gorm.DB
}

// NewGormIndex 创建数据库索引并迁移表结构
func NewGormIndex(db *gorm.DB) (*GormIndex, error) {
	if err := db.AutoMigrate(&indexDefinition{}, &IndexedDocument{}); err != nil {
		return nil, system.NewPersistenceError("migrate_index", "vulnerability_documents", err)
	}
	return &GormIndex{db: db}, nil
}

// EnsureIndex 记录索引定义，已存在时不覆盖映射
func (g *GormIndex) EnsureIndex(ctx context.Context, name string, mapping map[string]interface{}) (bool, error) {
	body, err := json.Marshal(mapping)
	if err != nil {
		return false, system.NewPersistenceError("create_index", name, err)
	}
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&indexDefinition{Name: name, Mapping: string(body)})
	if res.Error != nil {
		return false, system.NewPersistenceError("create_index", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Upsert 主键冲突时更新全部内容列
func (g *GormIndex) Upsert(ctx context.Context, index, id string, doc *gvm.IndexDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return system.NewPersistenceError("index_document", id, err)
	}
	row := &IndexedDocument{
		IndexName: index,
		DocID:     id,
		Threat:    doc.Threat,
		Severity:  doc.Severity,
		HostIP:    doc.Host.IP,
		Body:      string(body),
	}
	err = g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "index_name"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"threat", "severity", "host_ip", "body", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return system.NewPersistenceError("index_document", id, err)
	}
	return nil
}

// Get 读取文档
func (g *GormIndex) Get(ctx context.Context, index, id string) (*gvm.IndexDocument, error) {
	var row IndexedDocument
	err := g.db.WithContext(ctx).Where("index_name = ? AND doc_id = ?", index, id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, system.ErrNotFound
	}
	if err != nil {
		return nil, system.NewPersistenceError("get_document", id, err)
	}
	var doc gvm.IndexDocument
	if err := json.Unmarshal([]byte(row.Body), &doc); err != nil {
		return nil, system.NewPersistenceError("get_document", id, err)
	}
	return &doc, nil
}

// Count 统计索引内文档数
func (g *GormIndex) Count(ctx context.Context, index string) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&IndexedDocument{}).Where("index_name = ?", index).Count(&n).Error
	if err != nil {
		return 0, system.NewPersistenceError("count_documents", index, err)
	}
	return n, nil
}
