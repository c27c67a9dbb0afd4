package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/search-go/internal/logger"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// 审计事件类型
const (
	EventDocumentIngested = "document_ingested"
	EventDocumentDeleted  = "document_deleted"
	EventChatTurn         = "chat_turn"
)

// RAGEvent 检索生成审计事件
type RAGEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	DocumentID     string    `json:"document_id,omitempty"`
	Query          string    `json:"query,omitempty"`
	ChunkCount     int       `json:"chunk_count,omitempty"`
	Degraded       bool      `json:"degraded,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendEvent 发送事件到Kafka
func (p *Producer) SendEvent(event *RAGEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	key := event.ConversationID
	if key == "" {
		key = event.DocumentID
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.Error("发送Kafka事件失败", zap.Error(err))
		return fmt.Errorf("发送事件失败: %w", err)
	}

	logger.Debug("Kafka事件发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("type", event.Type))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublishEvent 异步发送审计事件，Kafka未配置时静默跳过。
// 发送在独立goroutine中完成，失败只记录告警，从不阻塞请求主流程。
func PublishEvent(event RAGEvent) {
	producer := GetProducer()
	if producer == nil {
		return
	}

	event.Timestamp = time.Now()
	go func() {
		if err := producer.SendEvent(&event); err != nil {
			logger.Warn("审计事件发送失败", zap.String("type", event.Type), zap.Error(err))
		}
	}()
}
