package lock

import (
	"context"
	"fmt"
	"time"

	"pointmarket/internal/apperr"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 加锁：SET key owner NX EX ttl，owner 用于释放时校验持有者
// 释放：Lua 脚本原子地比较 owner 并删除，避免误删他人的锁

var ErrLockFailed = apperr.New(apperr.KindConflict, "获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 基于 Redis 的互斥锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 带重试的阻塞加锁
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只释放自己持有的锁，返回是否真正删除了 key
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OrderLockKey 订单维度的锁：同一订单的支付、取消、退款互斥，不同订单互不影响
func OrderLockKey(orderNo string) string {
	return fmt.Sprintf("market:lock:order:%s", orderNo)
}

// PurchaseLockKey 同一买家对同一项目的下单互斥
func PurchaseLockKey(buyerID, projectID int64) string {
	return fmt.Sprintf("market:lock:purchase:%d:%d", buyerID, projectID)
}

// Locker 在持有锁期间执行 fn
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// RedisLocker 每次加锁使用新的 uuid 作为持有者标识
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
	newOwner      func() string
}

func NewRedisLocker(client *redis.Client, expiration, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		newOwner:      uuid.NewString,
	}
}

func (r *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l := NewDistributedLock(r.client, key, r.newOwner(), r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return err
	}
	// 业务已经提交，释放失败只能等待过期
	defer l.Unlock(context.Background())

	return fn()
}

// NopLocker 未启用 Redis 时使用，并发安全完全依赖数据库行锁
type NopLocker struct{}

func (NopLocker) WithLock(_ context.Context, _ string, fn func() error) error {
	return fn()
}
