package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB holds the optional auxiliary connections. A nil field means the
// backing service is not configured. The document store is opened separately
// and owns its own client.
type DB struct {
	Postgres *gorm.DB
	Redis    *redis.Client
}

// InitDB opens every auxiliary connection cfg configures.
func InitDB(ctx context.Context, cfg *Config) (*DB, error) {
	db := &DB{}

	if cfg.PostgresConnStr != "" {
		pg, err := initPostgres(cfg.PostgresConnStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.Postgres = pg
	}

	if cfg.RedisAddr != "" {
		rdb, err := initRedis(ctx, cfg.RedisAddr)
		if err != nil {
			db.CloseDB()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		db.Redis = rdb
	}

	return db, nil
}

// initPostgres initializes the PostgreSQL database connection using GORM
func initPostgres(connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}

	slog.Info("Successfully connected to PostgreSQL!")
	return db, nil
}

// ConnectMongo opens and pings a MongoDB client
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable not set")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("Successfully connected to MongoDB!")
	return client, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Warn("Failed to instrument Redis", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	slog.Info("Successfully connected to Redis!")
	return rdb, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			slog.Error("Error getting SQL DB from GORM", slog.String("error", err.Error()))
		} else if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing PostgreSQL connection", slog.String("error", err.Error()))
		} else {
			slog.Info("PostgreSQL connection closed.")
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			slog.Error("Error closing Redis connection", slog.String("error", err.Error()))
		} else {
			slog.Info("Redis connection closed.")
		}
	}
}
