// app.go — сборка зависимостей: хранилище, каталог, сервисы.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/epfl-sti/epflws/internal/api/handlers"
	"github.com/epfl-sti/epflws/internal/config"
	"github.com/epfl-sti/epflws/internal/database"
	"github.com/epfl-sti/epflws/internal/ldapclient"
	"github.com/epfl-sti/epflws/internal/memento"
	"github.com/epfl-sti/epflws/internal/repository"
	"github.com/epfl-sti/epflws/internal/service"
)

// app — собранное приложение.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *repository.Store
	storeChecker handlers.ReadinessChecker
	// pgDB — адаптер pgxpool → *sql.DB для topologymetrics (nil для SQLite)
	pgDB *sql.DB

	directory *ldapclient.Client
	persons   *service.PersonService
	labs      *service.LabService
	labSync   *service.LabSyncService
	memento   *service.MementoService

	closers []func()
}

// newApp применяет миграции, открывает хранилище и создаёт сервисы.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.directory = ldapclient.New(ldapclient.Config{
		URL:          cfg.LDAPURL,
		BaseDN:       cfg.LDAPBaseDN,
		BindDN:       cfg.LDAPBindDN,
		BindPassword: cfg.LDAPBindPassword,
		Timeout:      cfg.LDAPTimeout,
	}, logger)

	a.persons = service.NewPersonService(a.store.Posts, a.store.AutoFields, a.directory, logger)
	a.labs = service.NewLabService(a.store.Posts, a.store.AutoFields, a.directory, a.persons, logger)
	a.labSync = service.NewLabSyncService(a.labs, a.store.SyncState, cfg.LabDNSuffix, cfg.LabSyncInterval, logger)

	mementoClient := memento.New(cfg.MementoURL, cfg.MementoAllowedHost, cfg.MementoTimeout, nil, logger)
	a.memento = service.NewMementoService(mementoClient, cfg.MementoCacheSize, cfg.MementoCacheTTL, logger)

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case config.StoreBackendSQLite:
		if err := database.MigrateSQLite(a.cfg.SQLitePath, a.logger); err != nil {
			return fmt.Errorf("миграции SQLite: %w", err)
		}
		db, err := database.OpenSQLite(ctx, a.cfg.SQLitePath, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.store = repository.NewSQLiteStore(db)
		a.storeChecker = database.NewSQLiteReadinessChecker(db)

	default:
		if err := database.Migrate(a.cfg, a.logger); err != nil {
			return fmt.Errorf("миграции PostgreSQL: %w", err)
		}
		pool, err := database.Connect(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.store = repository.NewPostgresStore(pool)
		a.storeChecker = database.NewReadinessChecker(pool)

		// Проверка здоровья PostgreSQL через существующий пул соединений
		a.pgDB = stdlib.OpenDBFromPool(pool)
		a.closers = append(a.closers, func() { a.pgDB.Close() })
	}
	return nil
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
