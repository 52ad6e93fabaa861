package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/vowflow/journey/pkg/channels/gochannel"
	"github.com/vowflow/journey/pkg/channels/kafka"
	"github.com/vowflow/journey/pkg/eventbus"
)

// NewEventBus creates an event bus on the given topic backed by the
// configured transport provider.
func NewEventBus(provider, serviceName, topic string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, topic)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, topic)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
