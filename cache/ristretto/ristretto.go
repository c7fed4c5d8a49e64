package ristretto

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/anoixa/media-vault/cache/types"
)

// Ristretto 进程内元数据缓存
type Ristretto struct {
	client *ristretto.Cache
}

// NewRistretto 创建进程内缓存
func NewRistretto() (types.Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{client: cache}, nil
}

// Set 设置缓存项
func (r *Ristretto) Set(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if r.client.SetWithTTL(key, data, int64(len(data)), expiration) {
		r.client.Wait()
	}
	return nil
}

// Get 获取缓存项
func (r *Ristretto) Get(key string, dest interface{}) error {
	value, found := r.client.Get(key)
	if !found {
		return types.ErrCacheMiss
	}

	data, ok := value.([]byte)
	if !ok {
		return types.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除缓存项
func (r *Ristretto) Delete(key string) error {
	r.client.Del(key)
	return nil
}

// Close 关闭缓存
func (r *Ristretto) Close() error {
	r.client.Close()
	return nil
}
