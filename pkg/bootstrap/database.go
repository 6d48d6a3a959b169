package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"switchyard/internal/config"
	"switchyard/internal/filterstore"
	"switchyard/internal/logger"
	"switchyard/pkg/migrations"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis returns nil when no Redis host is configured.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if dc.Config.Database.Redis.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func PostgresDSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode,
	)
}

// InitPostgreSQL returns nil when no PostgreSQL host is configured.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.Config.Database.Postgres.Host == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", PostgresDSN(dc.Config.Database.Postgres))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

// InitMongoDB returns nil when no MongoDB URI is configured.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

// Storage is the channel filter store selected by storage.driver together
// with the connection backing it.
type Storage struct {
	Driver   string
	Store    filterstore.Store
	Postgres *sql.DB
	Mongo    *mongo.Client
	MongoDB  *mongo.Database
}

// OpenStorage connects the configured storage driver and, when
// database.run_migrations is set, brings its schema up to date.
func (dc *DatabaseConnector) OpenStorage(ctx context.Context) (*Storage, error) {
	s := &Storage{Driver: dc.Config.Storage.Driver}

	switch s.Driver {
	case config.StorageMemory, "":
		s.Driver = config.StorageMemory
		s.Store = filterstore.NewMemoryStore()

	case config.StoragePostgres:
		db, err := dc.InitPostgreSQL(ctx)
		if err != nil {
			return nil, err
		}
		if db == nil {
			return nil, fmt.Errorf("storage driver postgres requires database.postgres.host")
		}
		if dc.Config.Database.RunMigrations {
			if err := migrations.MigratePostgres(db); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			dc.Logger.Info("PostgreSQL migrations applied")
		}
		s.Postgres = db
		s.Store = filterstore.NewPostgresStore(db)

	case config.StorageMongoDB:
		client, err := dc.InitMongoDB(ctx)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, fmt.Errorf("storage driver mongodb requires database.mongodb.uri")
		}
		db := client.Database(dc.Config.Database.MongoDB.Database)
		if dc.Config.Database.RunMigrations {
			if err := migrations.EnsureMongoCollections(ctx, db); err != nil {
				client.Disconnect(ctx)
				return nil, fmt.Errorf("failed to create indexes: %w", err)
			}
			dc.Logger.Info("MongoDB indexes ensured")
		}
		s.Mongo = client
		s.MongoDB = db
		s.Store = filterstore.NewMongoStore(db)

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", s.Driver)
	}

	dc.Logger.Infow("Channel filter storage ready", "driver", s.Driver)
	return s, nil
}

func (s *Storage) Close(ctx context.Context) []error {
	var errs []error
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}
	return errs
}

// Ping checks the connection behind the store. The memory store always
// answers.
func (s *Storage) Ping(ctx context.Context) error {
	switch {
	case s.Postgres != nil:
		return s.Postgres.PingContext(ctx)
	case s.Mongo != nil:
		return s.Mongo.Ping(ctx, nil)
	}
	return nil
}
