package bronze

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "affiliateflow/config"
	"affiliateflow/logger"
)

// KafkaPublisher emits one message per bronze batch so downstream consumers
// can react to new data without polling the warehouse.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Log
}

func NewKafkaPublisher(cfg *appconfig.Config) (*KafkaPublisher, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kp := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Topic:    cfg.Storage.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}
	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return kp, nil
}

// Publish writes the batch envelope keyed by affiliate so one affiliate's
// batches stay ordered within a partition.
func (kp *KafkaPublisher) Publish(ctx context.Context, env BatchEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal batch envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.Metadata.AffiliateID),
		Value: data,
	}
	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write batch message: %w", err)
	}
	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"batch_id": env.Metadata.BatchID,
		"records":  env.Metadata.TotalRecords,
	}).Debug("batch published")
	return nil
}

func (kp *KafkaPublisher) Close() error {
	return kp.writer.Close()
}
