// Package featcache stores decoded feature frames in Redis
// so that repeated epochs do not re-read feature files
// from slow storage.
package featcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const keyPrefix = "anyspeech:frames:"

// Cache wraps a Redis client for frame storage.
// It implements anyhtk.FrameCache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Cache connected to the Redis server at
// addr.
// Entries expire after ttl (0 means never).
func New(addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// GetFrames looks up the frames for a key.
// The second return value is false on a cache miss.
func (c *Cache) GetFrames(key string) ([][]float64, bool, error) {
	if c.client == nil {
		return nil, false, errors.New("cache client is nil")
	}
	data, err := c.client.Get(context.Background(), keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get frames for %s: %w", key, err)
	}
	frames, err := DecodeFrames(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode frames for %s: %w", key, err)
	}
	return frames, true, nil
}

// PutFrames stores the frames for a key.
func (c *Cache) PutFrames(key string, frames [][]float64) error {
	if c.client == nil {
		return errors.New("cache client is nil")
	}
	data, err := EncodeFrames(frames)
	if err != nil {
		return err
	}
	if err := c.client.Set(context.Background(), keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set frames for %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// EncodeFrames serializes frames as the frame count and
// size followed by one float32 vector of all the values.
func EncodeFrames(frames [][]float64) ([]byte, error) {
	var dim int
	if len(frames) > 0 {
		dim = len(frames[0])
	}
	flat := make([]float32, 0, dim*len(frames))
	for _, f := range frames {
		if len(f) != dim {
			return nil, errors.New("encode frames: inconsistent frame size")
		}
		for _, x := range f {
			flat = append(flat, float32(x))
		}
	}
	return serializer.SerializeAny(
		serializer.Int(len(frames)),
		serializer.Int(dim),
		&anyvecsave.S{Vector: anyvec32.MakeVectorData(flat)},
	)
}

// DecodeFrames is the inverse of EncodeFrames.
func DecodeFrames(data []byte) ([][]float64, error) {
	var count, dim serializer.Int
	var vec *anyvecsave.S
	if err := serializer.DeserializeAny(data, &count, &dim, &vec); err != nil {
		return nil, essentials.AddCtx("decode frames", err)
	}
	if count < 0 || dim < 0 || vec.Vector.Len() != int(count)*int(dim) {
		return nil, errors.New("decode frames: bad data length")
	}
	var values []float64
	switch data := vec.Vector.Data().(type) {
	case []float32:
		values = make([]float64, len(data))
		for i, x := range data {
			values[i] = float64(x)
		}
	case []float64:
		values = data
	default:
		return nil, fmt.Errorf("decode frames: unsupported data type %T", data)
	}
	res := make([][]float64, count)
	for i := range res {
		res[i] = append([]float64{}, values[i*int(dim):(i+1)*int(dim)]...)
	}
	return res, nil
}
