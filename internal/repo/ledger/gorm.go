package ledger

import (
	"context"
	"time"

	"neogvm/internal/model/system"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngestedFile 账本表
type IngestedFile struct {
	Name       string    `json:"name" gorm:"primaryKey;size:255"`
	IngestedAt time.Time `json:"ingested_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (IngestedFile) TableName() string {
	return "ingested_reports"
}

// GormLedger 数据库账本
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger 创建数据库账本并迁移表结构
func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&IngestedFile{}); err != nil {
		return nil, system.NewPersistenceError("migrate_ledger", "ingested_reports", err)
	}
	return &GormLedger{db: db}, nil
}

// Load 读取全部已入库文件名
func (l *GormLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	var names []string
	if err := l.db.WithContext(ctx).Model(&IngestedFile{}).Pluck("name", &names).Error; err != nil {
		return nil, system.NewPersistenceError("load_ledger", "ingested_reports", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// Record 主键冲突时忽略
func (l *GormLedger) Record(ctx context.Context, name string) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&IngestedFile{Name: name}).Error
	if err != nil {
		return system.NewPersistenceError("record_ledger", name, err)
	}
	return nil
}
