// Package cache реализует хранение последних результатов и срезов метрик в Redis
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"edge-sentiment/internal/models"
	"edge-sentiment/internal/stats"
)

const (
	// LatestResultsKey список последних результатов
	LatestResultsKey = "sentiment:results:latest"
	// ResultsTotalKey счетчик сохраненных результатов
	ResultsTotalKey = "sentiment:results:total"
	// WorkerKeyPrefix префикс хэшей со срезами метрик воркеров
	WorkerKeyPrefix = "sentiment:workers:"
	// MaxLatestResults сколько результатов хранить в списке
	MaxLatestResults = 1000
	// SnapshotTTL время жизни среза метрик воркера
	SnapshotTTL = 1 * time.Minute
)

// RedisCache реализует кэширование в Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache создает новое подключение к Redis
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// CacheResults сохраняет результаты в ограниченный список последних результатов
func (r *RedisCache) CacheResults(ctx context.Context, records []models.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		values = append(values, data)
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, LatestResultsKey, values...)
	pipe.LTrim(ctx, LatestResultsKey, 0, MaxLatestResults-1)
	pipe.IncrBy(ctx, ResultsTotalKey, int64(len(records)))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache results: %w", err)
	}
	return nil
}

// LatestResults возвращает последние count результатов, новые первыми
func (r *RedisCache) LatestResults(ctx context.Context, count int64) ([]models.ResultRecord, error) {
	data, err := r.client.LRange(ctx, LatestResultsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest results: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(data))
	for _, d := range data {
		var rec models.ResultRecord
		if err := json.Unmarshal([]byte(d), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PublishSnapshot записывает срез метрик воркера в отдельный хэш с TTL
func (r *RedisCache) PublishSnapshot(ctx context.Context, workerID string, snap stats.Snapshot, ready bool) error {
	key := WorkerKeyPrefix + workerID

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, SnapshotFields(snap, ready))
	pipe.Expire(ctx, key, SnapshotTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// SnapshotFields поля хэша воркера
func SnapshotFields(snap stats.Snapshot, ready bool) map[string]interface{} {
	status := 0
	if ready {
		status = 1
	}
	return map[string]interface{}{
		"uptime_seconds":   snap.UptimeSeconds,
		"total_requests":   snap.TotalRequests,
		"total_latency_ms": snap.TotalLatencyMs,
		"avg_latency_ms":   strconv.FormatFloat(snap.AvgLatencyMs, 'f', 2, 64),
		"status":           status,
	}
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (r *RedisCache) Close() error {
	return r.client.Close()
}
