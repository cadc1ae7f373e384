// Пакет repository — слой доступа к хранилищу метаданных.
// Две реализации: PostgreSQL (pgx) и встроенный SQLite (database/sql + modernc).
// Все запросы — чистый SQL, без ORM.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт (запись изменена или уже существует).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// Store — набор репозиториев одного бэкенда.
type Store struct {
	Posts      PostRepository
	AutoFields AutoFieldRepository
	SyncState  SyncStateRepository
}

// NewPostgresStore создаёт репозитории поверх пула PostgreSQL.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Posts:      NewPostRepository(pool, NewTxRunner(pool)),
		AutoFields: NewAutoFieldRepository(pool),
		SyncState:  NewSyncStateRepository(pool),
	}
}

// NewSQLiteStore создаёт репозитории поверх базы SQLite.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Posts:      NewSQLitePostRepository(db),
		AutoFields: NewSQLiteAutoFieldRepository(db),
		SyncState:  NewSQLiteSyncStateRepository(db),
	}
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// runInSQLTx — аналог RunInTx для database/sql.
func runInSQLTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockKey — ключ сериализации get-or-create для пары (тип, ключ=значение).
func lockKey(postType, metaKey, metaValue string) string {
	return postType + "|" + metaKey + "=" + metaValue
}
