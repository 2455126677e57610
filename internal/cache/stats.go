package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/datapipe/internal/archiver"
	"github.com/andresuchdata/datapipe/internal/config"
)

const (
	sweepReportKey    = "sweep:last_report"
	filesProcessedKey = "stats:files_processed"
	filesFailedKey    = "stats:files_failed"
)

// Counters holds rolling totals across processing invocations.
type Counters struct {
	FilesProcessed int64 `json:"files_processed"`
	FilesFailed    int64 `json:"files_failed"`
}

// StatsCache records the last sweep report and rolling processing counters
// for the stats endpoint. A noop implementation backs deployments without
// Redis; the pipeline itself never depends on cached state.
type StatsCache interface {
	SetSweepReport(ctx context.Context, report *archiver.Report) error
	GetSweepReport(ctx context.Context) (*archiver.Report, bool, error)
	AddBatchCounts(ctx context.Context, processed, failed int) error
	GetCounters(ctx context.Context) (Counters, error)
}

type redisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopStatsCache struct{}

func NewStatsCache(cfg config.CacheConfig) (StatsCache, error) {
	if !cfg.Enabled {
		return &noopStatsCache{}, nil
	}

	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	// TTL <= 0 keeps stats until overwritten.
	ttl := time.Duration(cfg.StatsTTLSeconds) * time.Second
	if ttl < 0 {
		ttl = 0
	}

	return &redisStatsCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopStatsCache() StatsCache {
	return &noopStatsCache{}
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func (c *redisStatsCache) SetSweepReport(ctx context.Context, report *archiver.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode sweep report: %w", err)
	}
	if err := c.client.Set(ctx, sweepReportKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisStatsCache) GetSweepReport(ctx context.Context) (*archiver.Report, bool, error) {
	payload, err := c.client.Get(ctx, sweepReportKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var report archiver.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode sweep report: %w", err)
	}
	return &report, true, nil
}

func (c *redisStatsCache) AddBatchCounts(ctx context.Context, processed, failed int) error {
	if processed == 0 && failed == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	if processed > 0 {
		pipe.IncrBy(ctx, filesProcessedKey, int64(processed))
	}
	if failed > 0 {
		pipe.IncrBy(ctx, filesFailedKey, int64(failed))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}

func (c *redisStatsCache) GetCounters(ctx context.Context) (Counters, error) {
	var counters Counters

	processed, err := c.client.Get(ctx, filesProcessedKey).Int64()
	if err != nil && err != redis.Nil {
		return counters, fmt.Errorf("redis get failed: %w", err)
	}
	failed, err := c.client.Get(ctx, filesFailedKey).Int64()
	if err != nil && err != redis.Nil {
		return counters, fmt.Errorf("redis get failed: %w", err)
	}

	counters.FilesProcessed = processed
	counters.FilesFailed = failed
	return counters, nil
}

func (n *noopStatsCache) SetSweepReport(ctx context.Context, report *archiver.Report) error {
	return nil
}

func (n *noopStatsCache) GetSweepReport(ctx context.Context) (*archiver.Report, bool, error) {
	return nil, false, nil
}

func (n *noopStatsCache) AddBatchCounts(ctx context.Context, processed, failed int) error {
	return nil
}

func (n *noopStatsCache) GetCounters(ctx context.Context) (Counters, error) {
	return Counters{}, nil
}
