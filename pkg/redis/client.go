package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultNamespace prefixes every key written by this process.
const DefaultNamespace = "lyricfx:"

// Options 连接参数
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	// OpTimeout bounds each command so a slow redis never stalls a lookup.
	OpTimeout time.Duration
}

// Client Redis缓存客户端，键自动加命名空间前缀
type Client struct {
	rdb       *redis.Client
	namespace string
	opTimeout time.Duration
}

// NewClient 创建新的Redis客户端，连接失败时返回错误
func NewClient(opts Options) (*Client, error) {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 500 * time.Millisecond
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	client := &Client{rdb: rdb, namespace: opts.Namespace, opTimeout: opts.OpTimeout}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) key(k string) string {
	return c.namespace + k
}

// Get returns the value stored under key, or "" when the key is missing.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// SetWithExpiration 设置键值对（带过期时间），expiration 为 0 表示永久
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.rdb.Set(ctx, c.key(key), value, expiration).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
