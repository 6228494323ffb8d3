package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/channels/kafka"
)

const consumerGroup = ""

// NewEventChannel creates the publisher and subscriber execution events travel through.
// "memory" keeps events in process; "kafka" shares them between API instances.
func NewEventChannel(provider string, brokers string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "memory", "gochannel":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return pub, sub, nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, splitBrokers(brokers), consumerGroup)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")

	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}

	return list
}
