package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/pipeline"
	"github.com/aluiziolira/go-scrape-customers/queue"
	"github.com/aluiziolira/go-scrape-customers/store"
	"github.com/aluiziolira/go-scrape-customers/targets"
)

// Backend bundles the state store and the job queue of one deployment.
type Backend struct {
	Store    store.Store
	Queue    queue.Queue
	Consumer queue.Consumer

	sqlite *store.SQLiteStore
	closer func() error
}

// OpenBackend connects the store and queue selected by cfg.StoreBackend.
func OpenBackend(cfg *config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case "redis":
		client, err := store.NewRedisClient(store.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return newRedisBackend(client), nil
	case "sqlite":
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		q, err := queue.NewSQLiteQueue(db.DB())
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{Store: db, Queue: q, Consumer: q, sqlite: db, closer: db.Close}, nil
	default:
		return nil, &config.ConfigError{Field: "store", Err: fmt.Errorf("unsupported backend %q", cfg.StoreBackend)}
	}
}

func newRedisBackend(client *redis.Client) *Backend {
	q := queue.NewRedisQueue(client)
	return &Backend{
		Store:    store.NewRedisStore(client),
		Queue:    q,
		Consumer: q,
		closer:   client.Close,
	}
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// LoadCatalog returns the catalog file of cfg, or the compiled-in catalog.
func LoadCatalog(cfg *config.Config) (*targets.Catalog, error) {
	if cfg.CatalogFile == "" {
		return targets.Default(), nil
	}
	return targets.Load(cfg.CatalogFile)
}

// OpenSink builds the sink selected by cfg.OutputFormat, behind an
// in-process duplicate guard when DedupeMaxSize is positive.
func OpenSink(cfg *config.Config, catalog *targets.Catalog, b *Backend) (pipeline.Sink, error) {
	var (
		sink pipeline.Sink
		err  error
	)
	switch cfg.OutputFormat {
	case "csv":
		sink, err = pipeline.NewCSVSink(cfg.OutputDir, catalog)
	case "json":
		sink, err = pipeline.NewJSONSink(cfg.OutputDir, catalog)
	case "dual":
		sink, err = pipeline.NewDualSink(cfg.OutputDir, catalog)
	case "sqlite":
		sink, err = b.sqliteSink(cfg)
	default:
		err = &config.ConfigError{Field: "output_format", Err: fmt.Errorf("unsupported format %q", cfg.OutputFormat)}
	}
	if err != nil {
		return nil, err
	}

	if cfg.DedupeMaxSize > 0 {
		guarded, err := pipeline.NewDedupSink(sink, cfg.DedupeMaxSize)
		if err != nil {
			sink.Close()
			return nil, err
		}
		return guarded, nil
	}
	return sink, nil
}

// sqliteSink stores records next to the SQLite store when there is one,
// and in OutputDir/records.db otherwise.
func (b *Backend) sqliteSink(cfg *config.Config) (pipeline.Sink, error) {
	if b.sqlite != nil {
		return pipeline.NewSQLiteSink(b.sqlite.DB())
	}
	db, err := store.OpenSQLite(filepath.Join(cfg.OutputDir, "records.db"))
	if err != nil {
		return nil, err
	}
	sink, err := pipeline.NewSQLiteSink(db.DB())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &ownedSink{Sink: sink, close: db.Close}, nil
}

// ownedSink closes a database the sink does not own by itself.
type ownedSink struct {
	pipeline.Sink
	close func() error
}

func (s *ownedSink) Close() error {
	return errors.Join(s.Sink.Close(), s.close())
}
