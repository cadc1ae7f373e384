package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

// sqlDBTX — общий интерфейс *sql.DB и *sql.Tx.
type sqlDBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Временные метки в SQLite хранятся как TEXT фиксированной ширины (UTC),
// чтобы лексикографический порядок совпадал с хронологическим.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteNow() string {
	return formatSQLiteTime(time.Now())
}

func parseSQLiteTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

// --- Записи ---

// sqlitePostRepo — реализация PostRepository для SQLite.
// Пул ограничен одним соединением, поэтому get-or-create сериализуется
// самой базой.
type sqlitePostRepo struct {
	db *sql.DB
}

// NewSQLitePostRepository создаёт репозиторий записей SQLite.
func NewSQLitePostRepository(db *sql.DB) PostRepository {
	return &sqlitePostRepo{db: db}
}

func (r *sqlitePostRepo) Create(ctx context.Context, postType, title string, meta []model.MetaPair) (*model.Post, error) {
	var post *model.Post
	err := runInSQLTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		post, err = sqliteInsertPost(ctx, tx, postType, title, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *sqlitePostRepo) Get(ctx context.Context, id string) (*model.Post, error) {
	posts, err := sqliteLoadPosts(ctx, r.db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		WHERE p.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return posts[0], nil
}

func (r *sqlitePostRepo) GetMeta(ctx context.Context, id, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT meta_value FROM post_meta WHERE post_id = ? AND meta_key = ?`, id, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка получения метаданных %s: %w", key, err)
	}
	return value, nil
}

func (r *sqlitePostRepo) GetAllMeta(ctx context.Context, id string) (map[string]string, error) {
	post, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return post.Meta, nil
}

func (r *sqlitePostRepo) SetMeta(ctx context.Context, id, key, value string) error {
	return runInSQLTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := sqliteTouch(ctx, tx, id, nil); err != nil {
			return err
		}
		return sqliteUpsertMeta(ctx, tx, id, []model.MetaPair{{Key: key, Value: value}})
	})
}

func (r *sqlitePostRepo) Update(ctx context.Context, id, title string, meta []model.MetaPair) error {
	return runInSQLTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := sqliteTouch(ctx, tx, id, &title); err != nil {
			return err
		}
		return sqliteUpsertMeta(ctx, tx, id, meta)
	})
}

func (r *sqlitePostRepo) FindByMeta(ctx context.Context, postType, key, value string) ([]*model.Post, error) {
	posts, err := sqliteFindByMeta(ctx, r.db, postType, key, value)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по %s: %w", key, err)
	}
	return posts, nil
}

func (r *sqlitePostRepo) FindByMetaContains(ctx context.Context, postType, key, needle, orderKey string) ([]*model.Post, error) {
	posts, err := sqliteLoadPosts(ctx, r.db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		JOIN post_meta m ON m.post_id = p.id AND m.meta_key = ?
		JOIN post_meta o ON o.post_id = p.id AND o.meta_key = ?
		WHERE p.post_type = ? AND instr(m.meta_value, ?) > 0
		ORDER BY o.meta_value ASC, p.id ASC`,
		key, orderKey, postType, needle)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по подстроке %s: %w", key, err)
	}
	return posts, nil
}

func (r *sqlitePostRepo) GetOrCreateByMeta(ctx context.Context, postType, key, value string) (*model.Post, bool, error) {
	var (
		post    *model.Post
		created bool
	)
	err := runInSQLTx(ctx, r.db, func(tx *sql.Tx) error {
		existing, err := sqliteFindByMeta(ctx, tx, postType, key, value)
		if err != nil {
			return fmt.Errorf("ошибка поиска по %s: %w", key, err)
		}
		if len(existing) > 0 {
			post = existing[0]
			return nil
		}

		post, err = sqliteInsertPost(ctx, tx, postType, "", []model.MetaPair{{Key: key, Value: value}})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return post, created, nil
}

func sqliteInsertPost(ctx context.Context, db sqlDBTX, postType, title string, meta []model.MetaPair) (*model.Post, error) {
	now := sqliteNow()
	post := &model.Post{
		ID:       uuid.New().String(),
		PostType: postType,
		Title:    title,
		Meta:     make(map[string]string, len(meta)),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO posts (id, post_type, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		post.ID, postType, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи: %w", err)
	}
	post.CreatedAt, _ = parseSQLiteTime(now)
	post.UpdatedAt = post.CreatedAt

	if err := sqliteUpsertMeta(ctx, db, post.ID, meta); err != nil {
		return nil, err
	}
	for _, p := range meta {
		post.Meta[p.Key] = p.Value
	}
	return post, nil
}

func sqliteUpsertMeta(ctx context.Context, db sqlDBTX, id string, meta []model.MetaPair) error {
	for _, p := range meta {
		_, err := db.ExecContext(ctx, `
			INSERT INTO post_meta (post_id, meta_key, meta_value)
			VALUES (?, ?, ?)
			ON CONFLICT (post_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
			id, p.Key, p.Value)
		if err != nil {
			return fmt.Errorf("ошибка записи метаданных %s: %w", p.Key, err)
		}
	}
	return nil
}

// sqliteTouch обновляет updated_at (и заголовок, если title != nil).
// Возвращает ErrNotFound, если записи нет.
func sqliteTouch(ctx context.Context, db sqlDBTX, id string, title *string) error {
	var (
		res sql.Result
		err error
	)
	if title != nil {
		res, err = db.ExecContext(ctx,
			`UPDATE posts SET title = ?, updated_at = ? WHERE id = ?`, *title, sqliteNow(), id)
	} else {
		res, err = db.ExecContext(ctx,
			`UPDATE posts SET updated_at = ? WHERE id = ?`, sqliteNow(), id)
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqliteFindByMeta(ctx context.Context, db sqlDBTX, postType, key, value string) ([]*model.Post, error) {
	return sqliteLoadPosts(ctx, db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		JOIN post_meta m ON m.post_id = p.id
		WHERE p.post_type = ? AND m.meta_key = ? AND m.meta_value = ?
		ORDER BY p.created_at ASC, p.id ASC`,
		postType, key, value)
}

// sqliteLoadPosts — аналог pgLoadPosts для SQLite.
func sqliteLoadPosts(ctx context.Context, db sqlDBTX, query string, args ...any) ([]*model.Post, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var (
		posts []*model.Post
		ids   []any
		byID  = make(map[string]*model.Post)
	)
	for rows.Next() {
		p := &model.Post{Meta: make(map[string]string)}
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.PostType, &p.Title, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		if p.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("некорректный created_at %q: %w", createdAt, err)
		}
		if p.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("некорректный updated_at %q: %w", updatedAt, err)
		}
		posts = append(posts, p)
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	metaRows, err := db.QueryContext(ctx,
		`SELECT post_id, meta_key, meta_value FROM post_meta WHERE post_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения метаданных: %w", err)
	}
	defer metaRows.Close()

	for metaRows.Next() {
		var postID, key, value string
		if err := metaRows.Scan(&postID, &key, &value); err != nil {
			return nil, fmt.Errorf("ошибка сканирования метаданных: %w", err)
		}
		if p, ok := byID[postID]; ok {
			p.Meta[key] = value
		}
	}
	return posts, metaRows.Err()
}

// --- Автополя ---

type sqliteAutoFieldRepo struct {
	db *sql.DB
}

// NewSQLiteAutoFieldRepository создаёт репозиторий автополей SQLite.
func NewSQLiteAutoFieldRepository(db *sql.DB) AutoFieldRepository {
	return &sqliteAutoFieldRepo{db: db}
}

func (r *sqliteAutoFieldRepo) Append(ctx context.Context, postType string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return runInSQLTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO auto_fields (post_type, meta_key) VALUES (?, ?)
				ON CONFLICT (post_type, meta_key) DO NOTHING`, postType, k)
			if err != nil {
				return fmt.Errorf("ошибка добавления автополя %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *sqliteAutoFieldRepo) List(ctx context.Context, postType string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT meta_key FROM auto_fields WHERE post_type = ? ORDER BY meta_key`, postType)
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

// --- Состояние синхронизации ---

type sqliteSyncStateRepo struct {
	db *sql.DB
}

// NewSQLiteSyncStateRepository создаёт репозиторий состояния синхронизации SQLite.
func NewSQLiteSyncStateRepository(db *sql.DB) SyncStateRepository {
	return &sqliteSyncStateRepo{db: db}
}

func (r *sqliteSyncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	var last sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT last_lab_sync_at FROM sync_state WHERE id = 1`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения sync_state: %w", err)
	}

	s := &model.SyncState{}
	if last.Valid && last.String != "" {
		t, err := parseSQLiteTime(last.String)
		if err != nil {
			return nil, fmt.Errorf("некорректный last_lab_sync_at %q: %w", last.String, err)
		}
		s.LastLabSyncAt = &t
	}
	return s, nil
}

func (r *sqliteSyncStateRepo) UpdateLabSyncAt(ctx context.Context, t time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_state SET last_lab_sync_at = ? WHERE id = 1`,
		formatSQLiteTime(t))
	if err != nil {
		return fmt.Errorf("ошибка обновления last_lab_sync_at: %w", err)
	}
	return nil
}
