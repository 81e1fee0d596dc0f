package main

import (
	"fmt"

	"github.com/railyard/railyard/internal/config"
	"github.com/railyard/railyard/pkg/adapters/memory"
	redisStore "github.com/railyard/railyard/pkg/adapters/redis"
	"github.com/railyard/railyard/pkg/adapters/rest"
	"github.com/railyard/railyard/pkg/ports"
)

// storeFromConfig builds the section store the config selects.
func storeFromConfig(cfg config.Config) (ports.SectionStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case config.StoreRedis:
		return redisStore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), nil
	case config.StoreREST:
		return rest.New(cfg.Backend.URL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
