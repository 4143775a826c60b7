package callnum

import (
	"fmt"
	"log/slog"

	"github.com/dr-redtec/Voice-AI-Latency/internal/config"
)

// NewStore selects the pool backend from configuration.
func NewStore(cfg config.Config, log *slog.Logger) (Store, error) {
	switch cfg.CallNumberBackend {
	case "file":
		return NewFileStore(cfg.CallNumberPoolFile), nil
	case "badger":
		return NewBadgerStore(BadgerOptions{Dir: cfg.CallNumberBadgerDir, Logger: log})
	default:
		return nil, fmt.Errorf("unknown call number backend %q", cfg.CallNumberBackend)
	}
}

// NewAllocatorFromConfig wires the configured backend into an allocator.
func NewAllocatorFromConfig(cfg config.Config, log *slog.Logger) (*Allocator, error) {
	store, err := NewStore(cfg, log)
	if err != nil {
		return nil, err
	}
	alloc, err := NewAllocator(store, cfg.CallNumberRangeStart, cfg.CallNumberRangeEnd, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return alloc, nil
}
