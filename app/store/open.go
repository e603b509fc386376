package store

import (
	"context"
	"fmt"

	"github.com/Toumari/NorthStar/app/config"
	"github.com/rs/zerolog/log"
)

// Open builds the store selected by STORE_DRIVER.
func Open(ctx context.Context, cfg *config.Config) (UserStore, error) {
	switch cfg.Store.Driver {
	case config.StoreFirestore:
		return NewFirestoreStore(ctx, cfg.Firebase)
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.DB)
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
