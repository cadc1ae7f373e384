package repository

import (
	"context"
	"fmt"
)

// AutoFieldRepository — реестр полей, управляемых синхронизацией,
// по типам записей. Такие поля доступны редакторам только для чтения.
type AutoFieldRepository interface {
	// Append добавляет ключи к набору типа postType (повторы игнорируются).
	Append(ctx context.Context, postType string, keys []string) error
	// List возвращает ключи типа postType в алфавитном порядке.
	List(ctx context.Context, postType string) ([]string, error)
}

// autoFieldRepo — реализация AutoFieldRepository для PostgreSQL.
type autoFieldRepo struct {
	db DBTX
}

// NewAutoFieldRepository создаёт репозиторий автополей PostgreSQL.
func NewAutoFieldRepository(db DBTX) AutoFieldRepository {
	return &autoFieldRepo{db: db}
}

func (r *autoFieldRepo) Append(ctx context.Context, postType string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO auto_fields (post_type, meta_key)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (post_type, meta_key) DO NOTHING`,
		postType, keys)
	if err != nil {
		return fmt.Errorf("ошибка добавления автополей: %w", err)
	}
	return nil
}

func (r *autoFieldRepo) List(ctx context.Context, postType string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT meta_key FROM auto_fields WHERE post_type = $1 ORDER BY meta_key`, postType)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения автополей: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("ошибка сканирования автополя: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
