package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-opportunity-engine/pkg/common"

	"github.com/redis/go-redis/v9"
)

// ScanTask is the payload published for a background scan request.
type ScanTask struct {
	RunType     string    `json:"run_type"`
	RequestedAt time.Time `json:"requested_at"`
}

// ScanPublisher enqueues scan requests for the background worker.
type ScanPublisher interface {
	Publish(ctx context.Context, runType string) error
}

// NewScanPublisher creates a Redis-stream-backed scan publisher.
func NewScanPublisher(redisClient *redis.Client, streamMaxLen int64) ScanPublisher {
	return &scanPublisher{redisClient: redisClient, streamMaxLen: streamMaxLen}
}

type scanPublisher struct {
	redisClient  *redis.Client
	streamMaxLen int64
}

// Publish enqueues one scan request. The worker consuming the stream owns
// the error boundary for the scan itself.
func (p *scanPublisher) Publish(ctx context.Context, runType string) error {
	payload, err := json.Marshal(ScanTask{RunType: runType, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal scan task: %w", err)
	}

	if err := p.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamScanRequest,
		Values: map[string]interface{}{"payload": payload},
		MaxLen: p.streamMaxLen,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue scan task: %w", err)
	}
	return nil
}
