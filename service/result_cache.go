package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/usmansafdarmirza/OncoDetectAI/config"
	"github.com/usmansafdarmirza/OncoDetectAI/model"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

// ResultCache stores analyze responses in Redis for a short TTL so that
// re-submitting the same image skips inference. A disabled cache misses on
// every lookup.
type ResultCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

func NewResultCache(cfg *config.CacheConfig) *ResultCache {
	if !cfg.Enabled {
		return &ResultCache{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &ResultCache{
		client:  client,
		ttl:     cfg.TTL,
		enabled: true,
	}
}

func (s *ResultCache) Enabled() bool {
	return s.enabled
}

// Ping checks the connection and disables the cache when Redis is
// unreachable.
func (s *ResultCache) Ping(ctx context.Context) error {
	if !s.enabled {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.enabled = false
		return err
	}
	return nil
}

// Key identifies a response by image content, weight file and device.
func (s *ResultCache) Key(imageMD5, fileID, device string) string {
	return "analyze:" + imageMD5 + ":" + fileID + ":" + device
}

// Get returns the cached response for key, or nil on a miss.
func (s *ResultCache) Get(ctx context.Context, key string) (*model.AnalyzeResponse, error) {
	if !s.enabled {
		return nil, nil
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var resp model.AnalyzeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		utils.Logger.Error("failed to unmarshal cached response",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &resp, nil
}

func (s *ResultCache) Set(ctx context.Context, key string, resp *model.AnalyzeResponse) error {
	if !s.enabled {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *ResultCache) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
