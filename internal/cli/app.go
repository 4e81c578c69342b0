package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/physiq-backend/internal/config"
	"github.com/AnshRaj112/physiq-backend/internal/database"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/repository/memory"
	"github.com/AnshRaj112/physiq-backend/internal/repository/mongostore"
	"github.com/AnshRaj112/physiq-backend/internal/repository/sqlstore"
)

// backends holds every connection opened for one command run.
type backends struct {
	store repository.Store
	sql   *sqlstore.Store // nil for the memory driver
	redis *redis.Client   // nil unless SESSION_STORE=redis

	db    *sql.DB
	mongo *mongo.Client
}

// openBackends connects the store selected by cfg. Redis is only dialed when
// withRedis is set, since maintenance commands never need it.
func openBackends(ctx context.Context, cfg *config.Config, withRedis bool) (*backends, error) {
	b := &backends{}
	if err := b.openStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}

	if cfg.MessageStore == config.MessageStoreMongo {
		log.Printf("Connecting to MongoDB...")
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		b.mongo = client
		msgs := mongostore.New(db)
		if err := msgs.EnsureIndexes(ctx); err != nil {
			log.Printf("⚠️  WARNING: failed to ensure MongoDB message indexes: %v", err)
		} else {
			log.Println("✅ MongoDB message indexes ensured")
		}
		b.store = repository.WithMessages(b.store, msgs)
	}

	if withRedis && cfg.SessionStore == config.SessionStoreRedis {
		log.Printf("Connecting to Redis...")
		client, err := database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.redis = client
	}
	return b, nil
}

func (b *backends) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Println("⚠️  Using in-memory store; data is lost on restart")
		b.store = memory.New()
		return nil
	case config.StorePostgres:
		log.Printf("Connecting to PostgreSQL...")
		db, err := database.ConnectPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		b.db = db
		b.sql = sqlstore.New(db, sqlstore.Postgres)
	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		b.db = db
		b.sql = sqlstore.New(db, sqlstore.SQLite)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	b.store = b.sql
	return nil
}

// migrate applies the SQL schema; the memory store needs none.
func (b *backends) migrate(ctx context.Context) error {
	if b.sql == nil {
		return nil
	}
	if err := b.sql.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Println("✅ Schema is up to date")
	return nil
}

// Close releases every open connection.
func (b *backends) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}
	if b.mongo != nil {
		if err := database.DisconnectMongo(b.mongo); err != nil {
			log.Printf("⚠️  Error disconnecting MongoDB: %v", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}
}
