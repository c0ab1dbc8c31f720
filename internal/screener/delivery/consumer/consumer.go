package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"stock-opportunity-engine/internal/screener/service"
	"stock-opportunity-engine/pkg/common"
	"stock-opportunity-engine/pkg/logger"
	"stock-opportunity-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisConsumer executes scan requests published to the scan stream. It is
// the fire-and-forget path: there is no caller to observe an error, so
// every failure terminates in the progress tracker and the run row instead
// of propagating.
type RedisConsumer struct {
	redisClient *redis.Client
	pipeline    service.PipelineService
	logger      *logger.Logger
	scanTimeout time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(redisClient *redis.Client, pipeline service.PipelineService, log *logger.Logger, scanTimeout time.Duration) *RedisConsumer {
	return &RedisConsumer{
		redisClient: redisClient,
		pipeline:    pipeline,
		logger:      log,
		scanTimeout: scanTimeout,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the consumer's task processing loop.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.ensureGroup(ctx)
	c.logger.Info("Scan consumer started", logger.StringField("stream", common.RedisStreamScanRequest))

	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Scan consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.logger.Info("Scan consumer stopping")
				return
			default:
				c.consumeOnce(ctx)
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Scan consumer stopped")
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) {
	err := c.redisClient.XGroupCreateMkStream(ctx, common.RedisStreamScanRequest, common.RedisStreamGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		c.logger.Error("Failed to create consumer group", logger.ErrorField(err))
	}
}

func (c *RedisConsumer) consumeOnce(ctx context.Context) {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamScanRequest, ">"},
		Count:    1,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.logger.Error("Failed to read scan stream", logger.ErrorField(err))
		}
		return
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleMessage(ctx, message)
		}
	}
}

// handleMessage is the error boundary for one background scan: the message
// is always acked, and any scan failure is only surfaced via the run row
// and the progress tracker.
func (c *RedisConsumer) handleMessage(ctx context.Context, message redis.XMessage) {
	defer func() {
		if err := c.redisClient.XAck(ctx, common.RedisStreamScanRequest, common.RedisStreamGroup, message.ID).Err(); err != nil {
			c.logger.Error("Failed to ack scan message", logger.ErrorField(err), logger.StringField("message_id", message.ID))
		}
	}()

	payload, ok := message.Values["payload"].(string)
	if !ok {
		c.logger.Error("Scan message missing payload", logger.StringField("message_id", message.ID))
		return
	}

	var task service.ScanTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		c.logger.Error("Failed to unmarshal scan task", logger.ErrorField(err), logger.StringField("message_id", message.ID))
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	c.logger.Info("Background scan starting", logger.StringField("run_type", task.RunType))
	if _, err := c.pipeline.RunScan(scanCtx, task.RunType); err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			c.logger.Warn("Dropping scan request, another scan is running", logger.StringField("run_type", task.RunType))
			return
		}
		c.logger.Error("Background scan failed", logger.ErrorField(err), logger.StringField("run_type", task.RunType))
	}
}
