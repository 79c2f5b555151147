package events

import (
	"fmt"
	"strings"

	"github.com/orchcore/orchcore/internal/common/config"
	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/events/bus"
)

// ProvidedBus wraps the active event bus implementation.
type ProvidedBus struct {
	Bus   bus.EventBus
	Memory *bus.MemoryBus
	NATS   *bus.NATSBus
}

// Provide builds the configured event bus implementation: NATSBus when
// NATS.URL is set, MemoryBus otherwise (spec §4.2 default, §9 alternate).
func Provide(cfg *config.Config, log *logger.Logger) (*ProvidedBus, func() error, error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		cleanup := func() error {
			natsBus.Close()
			return nil
		}
		return &ProvidedBus{Bus: natsBus, NATS: natsBus}, cleanup, nil
	}

	memBus := bus.NewMemoryBus(log)
	return &ProvidedBus{Bus: memBus, Memory: memBus}, func() error { memBus.Close(); return nil }, nil
}
