package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

const (
	statusKey   = "pipeline:status"
	progressKey = "pipeline:progress"

	stateTTL   = 24 * time.Hour
	triggerTTL = 48 * time.Hour
)

func triggerKey(userID uint) string {
	return fmt.Sprintf("trigger:%d", userID)
}

// RedisStore 流水线状态镜像 + 手动触发计数
type RedisStore struct {
	client *redis.Client
}

// Options Redis 连接参数
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore 连接 Redis 并 Ping 一次
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("连接 Redis 失败 (%s)", opts.Addr), err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveProgress(ctx context.Context, p domain.Progress) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, progressKey, map[string]interface{}{
		"percentage": strconv.Itoa(p.Percentage),
		"step":       p.Step,
		"message":    p.Message,
	})
	pipe.Expire(ctx, progressKey, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadProgress(ctx context.Context) (domain.Progress, error) {
	data, err := s.client.HGetAll(ctx, progressKey).Result()
	if err != nil {
		return domain.Progress{}, fmt.Errorf("failed to load progress: %w", err)
	}
	if len(data) == 0 {
		return domain.Progress{Step: "idle", Message: "等待中"}, nil
	}
	pct, _ := strconv.Atoi(data["percentage"])
	return domain.Progress{Percentage: pct, Step: data["step"], Message: data["message"]}, nil
}

// SaveStatus last 为 nil 时只更新 running 字段
func (s *RedisStore) SaveStatus(ctx context.Context, running bool, last *domain.RunResult) error {
	fields := map[string]interface{}{"running": "0"}
	if running {
		fields["running"] = "1"
	}
	if last != nil {
		b, err := json.Marshal(last)
		if err != nil {
			return fmt.Errorf("failed to marshal run result: %w", err)
		}
		fields["last_result"] = string(b)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, statusKey, fields)
	pipe.Expire(ctx, statusKey, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// LoadStatus 解析失败的 last_result 当作不存在
func (s *RedisStore) LoadStatus(ctx context.Context) (bool, *domain.RunResult, error) {
	data, err := s.client.HGetAll(ctx, statusKey).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to load status: %w", err)
	}

	var last *domain.RunResult
	if raw := data["last_result"]; raw != "" {
		var r domain.RunResult
		if json.Unmarshal([]byte(raw), &r) == nil {
			last = &r
		}
	}
	return data["running"] == "1", last, nil
}

// Count 存储的日期不是 date 时视为 0
func (s *RedisStore) Count(ctx context.Context, userID uint, date string) (int, error) {
	data, err := s.client.HGetAll(ctx, triggerKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read trigger count: %w", err)
	}
	if data["date"] != date {
		return 0, nil
	}
	n, _ := strconv.Atoi(data["count"])
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, userID uint, date string) error {
	key := triggerKey(userID)

	current, err := s.client.HGet(ctx, key, "date").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read trigger date: %w", err)
	}

	pipe := s.client.TxPipeline()
	if current != date {
		pipe.HSet(ctx, key, map[string]interface{}{"date": date, "count": "1"})
	} else {
		pipe.HIncrBy(ctx, key, "count", 1)
	}
	pipe.Expire(ctx, key, triggerTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment trigger count: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
