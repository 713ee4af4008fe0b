// Package app assembles a virtual database from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/veltab/veltab/internal/backend/csvfile"
	"github.com/veltab/veltab/internal/backend/jsonl"
	"github.com/veltab/veltab/internal/backend/memtable"
	"github.com/veltab/veltab/internal/backend/sqlitetab"
	"github.com/veltab/veltab/internal/config"
	"github.com/veltab/veltab/internal/storage"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/virtual"
)

// App owns the database built from a config and the resources behind it.
type App struct {
	cfg *config.Config
	db  *virtual.Database

	mu      sync.Mutex
	sqlite  map[string]*sql.DB // path → shared handle
	storage storage.ObjectStorage
}

// New validates the configuration and prepares an app. Open builds the
// database.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &App{
		cfg:    cfg,
		sqlite: make(map[string]*sql.DB),
	}, nil
}

// Database returns the assembled database. Open must have succeeded.
func (a *App) Database() *virtual.Database {
	return a.db
}

// Open builds the object store and registers every configured table.
func (a *App) Open(ctx context.Context) error {
	defColl, err := collate.ByName(a.cfg.DefaultCollation)
	if err != nil {
		return fmt.Errorf("default collation: %w", err)
	}
	a.db = virtual.NewDatabase(virtual.WithDefaultCollation(defColl))

	for i := range a.cfg.Tables {
		if err := a.register(ctx, &a.cfg.Tables[i]); err != nil {
			return fmt.Errorf("table %s: %w", a.cfg.Tables[i].Name, err)
		}
	}
	return nil
}

func (a *App) register(ctx context.Context, tc *config.TableConfig) error {
	schema := tc.ColumnDefs()

	var opts []virtual.TableOption
	if tc.Collation != "" {
		coll, err := collate.ByName(tc.Collation)
		if err != nil {
			return fmt.Errorf("collation: %w", err)
		}
		opts = append(opts, virtual.WithCollation(coll))
	}

	var vt *virtual.Table
	var err error
	switch tc.Source {
	case config.SourceMemory:
		var store *memtable.Store
		vt, store, err = memtable.NewTable(tc.Name, schema, opts...)
		if err == nil && len(tc.Seed) > 0 {
			err = store.Seed(tc.Seed)
		}

	case config.SourceCSV:
		var csvOpts []csvfile.Option
		if tc.CSV.Delimiter != "" {
			csvOpts = append(csvOpts, csvfile.WithComma([]rune(tc.CSV.Delimiter)[0]))
		}
		src := csvfile.New(tc.CSV.Path, schema, csvOpts...)
		vt, err = virtual.NewTable(tc.Name, schema, src.Select, opts...)

	case config.SourceSQLite:
		var sdb *sql.DB
		sdb, err = a.sqliteHandle(tc.SQLite.Path)
		if err != nil {
			return err
		}
		tableName := tc.SQLite.Table
		if tableName == "" {
			tableName = tc.Name
		}
		src := sqlitetab.New(sdb, tableName, schema)
		opts = append([]virtual.TableOption{
			virtual.WithInsert(src.Insert),
			virtual.WithUpdate(src.Update),
			virtual.WithDelete(src.Delete),
			virtual.WithCount(src.Count),
			virtual.WithLoad(src.Load),
		}, opts...)
		vt, err = virtual.NewTable(tc.Name, schema, src.Select, opts...)

	case config.SourceJSONL:
		st, serr := a.objectStorage(ctx)
		if serr != nil {
			return serr
		}
		prefix := tc.JSONL.Prefix
		if prefix == "" {
			prefix = "tables/" + tc.Name
		}
		vt, _, err = jsonl.NewTable(tc.Name, st, prefix, schema, opts...)

	default:
		return fmt.Errorf("unknown source %q", tc.Source)
	}
	if err != nil {
		return err
	}
	return a.db.Register(vt)
}

// sqliteHandle returns the shared handle for a database file, opening it on
// first use so tables in the same file share one connection pool.
func (a *App) sqliteHandle(path string) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if db, ok := a.sqlite[path]; ok {
		return db, nil
	}
	db, err := sqlitetab.Open(path)
	if err != nil {
		return nil, err
	}
	a.sqlite[path] = db
	return db, nil
}

// objectStorage lazily builds the configured object store.
func (a *App) objectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.storage != nil {
		return a.storage, nil
	}

	switch a.cfg.Storage.Type {
	case "s3":
		st, err := storage.NewS3Store(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		a.storage = st
	default:
		st, err := storage.NewLocalStore(a.cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.storage = st
	}
	return a.storage, nil
}

// Close releases every resource the app opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for path, db := range a.sqlite {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
		delete(a.sqlite, path)
	}
	return firstErr
}
