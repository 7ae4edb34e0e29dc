package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Clients holds the shared connections main hands to repositories.
// Mongo is optional; without it tool audit is disabled.
type Clients struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Mongo   *mongo.Client
	MongoDB *mongo.Database
}

func Connect(ctx context.Context, cfg *Config) (*Clients, error) {
	c := &Clients{}

	db, err := NewPostgres(cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	c.DB = db
	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}

	rdb, err := NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("redis: %w", err)
	}
	c.Redis = rdb

	if cfg.MongoURI != "" {
		mc, err := NewMongo(ctx, MongoOptions{
			URI:         cfg.MongoURI,
			ForceTLS:    cfg.MongoForceTLS,
			InsecureTLS: cfg.MongoInsecureTLS,
		})
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("mongo: %w", err)
		}
		c.Mongo = mc
		c.MongoDB = mc.Database(cfg.MongoDB)
		if err := EnsureMongoIndexes(ctx, c.MongoDB); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
	}
	return c, nil
}

func (c *Clients) Close(ctx context.Context) error {
	var errs []error
	if c.Mongo != nil {
		errs = append(errs, c.Mongo.Disconnect(ctx))
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
