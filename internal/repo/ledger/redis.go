package ledger

import (
	"context"

	"neogvm/internal/model/system"

	"github.com/go-redis/redis/v8"
)

// RedisLedger 以 Redis 集合保存账本，多实例共享
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedisLedger 创建Redis账本
func NewRedisLedger(client *redis.Client, key string) *RedisLedger {
	return &RedisLedger{client: client, key: key}
}

// Load 读取集合全部成员
func (l *RedisLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	members, err := l.client.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, system.NewPersistenceError("load_ledger", l.key, err)
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, nil
}

// Record SADD 天然幂等
func (l *RedisLedger) Record(ctx context.Context, name string) error {
	if err := l.client.SAdd(ctx, l.key, name).Err(); err != nil {
		return system.NewPersistenceError("record_ledger", name, err)
	}
	return nil
}
