package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

// SyncStateRepository — интерфейс для таблицы sync_state (одна строка).
type SyncStateRepository interface {
	// Get возвращает текущее состояние синхронизации.
	Get(ctx context.Context) (*model.SyncState, error)
	// UpdateLabSyncAt обновляет время последней синхронизации лабораторий.
	UpdateLabSyncAt(ctx context.Context, t time.Time) error
}

// syncStateRepo — реализация SyncStateRepository для PostgreSQL.
type syncStateRepo struct {
	db DBTX
}

// NewSyncStateRepository создаёт репозиторий состояния синхронизации.
func NewSyncStateRepository(db DBTX) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	s := &model.SyncState{}
	err := r.db.QueryRow(ctx,
		`SELECT last_lab_sync_at FROM sync_state WHERE id = 1`,
	).Scan(&s.LastLabSyncAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sync_state: %w", err)
	}
	return s, nil
}

func (r *syncStateRepo) UpdateLabSyncAt(ctx context.Context, t time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sync_state SET last_lab_sync_at = $1, updated_at = now() WHERE id = 1`, t)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_lab_sync_at: %w", err)
	}
	return nil
}
