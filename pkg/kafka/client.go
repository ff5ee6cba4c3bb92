// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"xiaowen-go/internal/config"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tasks"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
//
// Process 只在「结果无法落库」（基础设施故障）时返回错误；文档本身的
// 失败（下载、解析、向量化）记录为 Failed 状态后按成功提交处理。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// Producer 负责发送摄取任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestTask 发送一个文档摄取任务。
// 以指纹作为消息 key，同一文档的消息落在同一分区、保持顺序。
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Fingerprint),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费摄取任务并交给 TaskProcessor 处理。
type Consumer struct {
	reader    *kafka.Reader
	rdb       *redis.Client
	processor TaskProcessor
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, processor: processor}
}

// Start 启动消费循环，直到 ctx 取消或 reader 关闭。
func (c *Consumer) Start(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				log.Info("Kafka 消费者退出")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理摄取任务: fingerprint=%s, file=%s", task.Fingerprint, task.FileName)
		if err := c.processor.Process(ctx, task); err != nil {
			log.Errorf("处理摄取任务失败: fingerprint=%s, error: %v", task.Fingerprint, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.Fingerprint)
			attempts, incErr := c.rdb.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = c.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			if attempts >= 3 {
				log.Errorf("摄取任务多次失败(>=3)，提交 offset 终止重试: fingerprint=%s", task.Fingerprint)
				if err := c.reader.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("摄取任务处理完成: fingerprint=%s", task.Fingerprint)
			// 清理失败计数
			_ = c.rdb.Del(ctx, fmt.Sprintf("kafka:attempts:%s", task.Fingerprint)).Err()
			// 任务处理完成后，手动提交 offset
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// Close 关闭消费者。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
