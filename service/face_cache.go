package service

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/redis/go-redis/v9"
)

// FaceCache 以图像内容哈希为键缓存人脸检测结果
type FaceCache interface {
	Get(ctx context.Context, key string) ([]image.Rectangle, bool, error)
	Put(ctx context.Context, key string, faces []image.Rectangle) error
}

// NopFaceCache 不做任何缓存
type NopFaceCache struct{}

func (NopFaceCache) Get(context.Context, string) ([]image.Rectangle, bool, error) {
	return nil, false, nil
}

func (NopFaceCache) Put(context.Context, string, []image.Rectangle) error {
	return nil
}

// MemoryFaceCache 容量有限的 FIFO 缓存，可并发使用
type MemoryFaceCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type memoryEntry struct {
	key   string
	faces []image.Rectangle
}

func NewMemoryFaceCache(capacity int) *MemoryFaceCache {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryFaceCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *MemoryFaceCache) Get(_ context.Context, key string) ([]image.Rectangle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return copyRects(e.Value.(*memoryEntry).faces), true, nil
}

func (c *MemoryFaceCache) Put(_ context.Context, key string, faces []image.Rectangle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		// FIFO：更新值但不调整淘汰顺序
		e.Value.(*memoryEntry).faces = copyRects(faces)
		return nil
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).key)
	}
	c.entries[key] = c.order.PushBack(&memoryEntry{key: key, faces: copyRects(faces)})
	return nil
}

// Len 当前缓存条目数
func (c *MemoryFaceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func copyRects(in []image.Rectangle) []image.Rectangle {
	if in == nil {
		return nil
	}
	out := make([]image.Rectangle, len(in))
	copy(out, in)
	return out
}

// RedisFaceCache 基于 Redis 的跨进程人脸缓存
type RedisFaceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFaceCache(cfg *config.RedisConfig) *RedisFaceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisFaceCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *RedisFaceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 从缓存获取人脸框
func (c *RedisFaceCache) Get(ctx context.Context, key string) ([]image.Rectangle, bool, error) {
	data, err := c.client.Get(ctx, "faces:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, err
	}

	var boxes []model.BBox
	if err := json.Unmarshal(data, &boxes); err != nil {
		return nil, false, err
	}

	faces := make([]image.Rectangle, len(boxes))
	for i, b := range boxes {
		faces[i] = b.Rect()
	}
	return faces, true, nil
}

// Put 写入缓存
func (c *RedisFaceCache) Put(ctx context.Context, key string, faces []image.Rectangle) error {
	boxes := make([]model.BBox, len(faces))
	for i, f := range faces {
		boxes[i] = model.BBoxFromRect(f)
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, "faces:"+key, data, c.ttl).Err()
}

func (c *RedisFaceCache) Close() error {
	return c.client.Close()
}
