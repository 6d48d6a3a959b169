package broker

import (
	"fmt"

	"switchyard/internal/config"
	"switchyard/internal/logger"
)

// NewProducer returns nil without error when the broker is disabled.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case config.BrokerKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case config.BrokerNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NewConsumer returns nil without error when the broker is disabled.
func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case config.BrokerKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case config.BrokerNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
