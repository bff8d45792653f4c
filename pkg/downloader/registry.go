package downloader

import (
	"fmt"
	"sort"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/types"
)

type Factory func(cfg *config.Config, logger types.Logger) (Driver, error)

// registry stores each driver's factory function keyed by its config name.
var registry = map[string]Factory{}

// Register is called from each driver's init() so New can resolve the
// `driver:` value of the config without the CLI knowing the implementations.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New returns a fresh driver for cfg.Driver.
func New(cfg *config.Config, logger types.Logger) (Driver, error) {
	factory, ok := registry[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("no driver registered for type: %s", cfg.Driver)
	}
	return factory(cfg, logger)
}

// Registered lists the known driver names, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
