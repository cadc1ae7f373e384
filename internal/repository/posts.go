package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

// PostRepository — интерфейс хранилища записей и их метаданных.
type PostRepository interface {
	// Create создаёт запись с заголовком и метаданными, назначая ей UUID.
	Create(ctx context.Context, postType, title string, meta []model.MetaPair) (*model.Post, error)
	// Get возвращает запись со всеми метаданными. ErrNotFound, если записи нет.
	Get(ctx context.Context, id string) (*model.Post, error)
	// GetMeta возвращает значение ключа или пустую строку, если ключ не задан.
	GetMeta(ctx context.Context, id, key string) (string, error)
	// GetAllMeta возвращает все метаданные записи.
	GetAllMeta(ctx context.Context, id string) (map[string]string, error)
	// SetMeta устанавливает одно значение метаданных.
	SetMeta(ctx context.Context, id, key, value string) error
	// Update атомарно обновляет заголовок и набор метаданных.
	Update(ctx context.Context, id, title string, meta []model.MetaPair) error
	// FindByMeta возвращает записи типа postType с meta[key] == value
	// в порядке создания.
	FindByMeta(ctx context.Context, postType, key, value string) ([]*model.Post, error)
	// FindByMetaContains возвращает записи, у которых meta[key] содержит
	// подстроку needle, упорядоченные по meta[orderKey] по возрастанию.
	// Записи без orderKey не возвращаются.
	FindByMetaContains(ctx context.Context, postType, key, needle, orderKey string) ([]*model.Post, error)
	// GetOrCreateByMeta возвращает первую запись с meta[key] == value или
	// создаёт новую. Конкурентные вызовы с одним ключом сериализуются.
	GetOrCreateByMeta(ctx context.Context, postType, key, value string) (*model.Post, bool, error)
}

// postRepo — реализация PostRepository для PostgreSQL.
type postRepo struct {
	db DBTX
	tx *TxRunner
}

// NewPostRepository создаёт репозиторий записей PostgreSQL.
func NewPostRepository(db DBTX, tx *TxRunner) PostRepository {
	return &postRepo{db: db, tx: tx}
}

const selectPostColumns = `p.id, p.post_type, p.title, p.created_at, p.updated_at`

func (r *postRepo) Create(ctx context.Context, postType, title string, meta []model.MetaPair) (*model.Post, error) {
	var post *model.Post
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		post, err = pgInsertPost(ctx, tx, postType, title, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *postRepo) Get(ctx context.Context, id string) (*model.Post, error) {
	if !isPostID(id) {
		return nil, ErrNotFound
	}
	posts, err := pgLoadPosts(ctx, r.db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		WHERE p.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return posts[0], nil
}

func (r *postRepo) GetMeta(ctx context.Context, id, key string) (string, error) {
	if !isPostID(id) {
		return "", nil
	}
	var value string
	err := r.db.QueryRow(ctx,
		`SELECT meta_value FROM post_meta WHERE post_id = $1 AND meta_key = $2`,
		id, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка получения метаданных %s: %w", key, err)
	}
	return value, nil
}

func (r *postRepo) GetAllMeta(ctx context.Context, id string) (map[string]string, error) {
	post, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return post.Meta, nil
}

func (r *postRepo) SetMeta(ctx context.Context, id, key, value string) error {
	if !isPostID(id) {
		return ErrNotFound
	}
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := pgTouch(ctx, tx, id); err != nil {
			return err
		}
		return pgUpsertMeta(ctx, tx, id, []model.MetaPair{{Key: key, Value: value}})
	})
}

func (r *postRepo) Update(ctx context.Context, id, title string, meta []model.MetaPair) error {
	if !isPostID(id) {
		return ErrNotFound
	}
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE posts SET title = $2, updated_at = now() WHERE id = $1`, id, title)
		if err != nil {
			return fmt.Errorf("ошибка обновления записи: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return pgUpsertMeta(ctx, tx, id, meta)
	})
}

func (r *postRepo) FindByMeta(ctx context.Context, postType, key, value string) ([]*model.Post, error) {
	posts, err := pgFindByMeta(ctx, r.db, postType, key, value)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по %s: %w", key, err)
	}
	return posts, nil
}

func (r *postRepo) FindByMetaContains(ctx context.Context, postType, key, needle, orderKey string) ([]*model.Post, error) {
	posts, err := pgLoadPosts(ctx, r.db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		JOIN post_meta m ON m.post_id = p.id AND m.meta_key = $2
		JOIN post_meta o ON o.post_id = p.id AND o.meta_key = $4
		WHERE p.post_type = $1 AND position($3 IN m.meta_value) > 0
		ORDER BY o.meta_value ASC, p.id ASC`,
		postType, key, needle, orderKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по подстроке %s: %w", key, err)
	}
	return posts, nil
}

func (r *postRepo) GetOrCreateByMeta(ctx context.Context, postType, key, value string) (*model.Post, bool, error) {
	var (
		post    *model.Post
		created bool
	)
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		// Блокировка освобождается при завершении транзакции
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			lockKey(postType, key, value),
		); err != nil {
			return fmt.Errorf("ошибка блокировки get-or-create: %w", err)
		}

		existing, err := pgFindByMeta(ctx, tx, postType, key, value)
		if err != nil {
			return fmt.Errorf("ошибка поиска по %s: %w", key, err)
		}
		if len(existing) > 0 {
			post = existing[0]
			return nil
		}

		post, err = pgInsertPost(ctx, tx, postType, "", []model.MetaPair{{Key: key, Value: value}})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return post, created, nil
}

// --- Вспомогательные функции (работают как с пулом, так и с транзакцией) ---

func pgInsertPost(ctx context.Context, db DBTX, postType, title string, meta []model.MetaPair) (*model.Post, error) {
	post := &model.Post{
		ID:       uuid.New().String(),
		PostType: postType,
		Title:    title,
		Meta:     make(map[string]string, len(meta)),
	}
	err := db.QueryRow(ctx,
		`INSERT INTO posts (id, post_type, title) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		post.ID, postType, title,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи: %w", err)
	}

	if err := pgUpsertMeta(ctx, db, post.ID, meta); err != nil {
		return nil, err
	}
	for _, p := range meta {
		post.Meta[p.Key] = p.Value
	}
	return post, nil
}

func pgUpsertMeta(ctx context.Context, db DBTX, id string, meta []model.MetaPair) error {
	for _, p := range meta {
		_, err := db.Exec(ctx, `
			INSERT INTO post_meta (post_id, meta_key, meta_value)
			VALUES ($1, $2, $3)
			ON CONFLICT (post_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
			id, p.Key, p.Value)
		if err != nil {
			return fmt.Errorf("ошибка записи метаданных %s: %w", p.Key, err)
		}
	}
	return nil
}

// isPostID — id записи в PostgreSQL всегда UUID; иное значение не может
// существовать в таблице posts.
func isPostID(id string) bool {
	return uuid.Validate(id) == nil
}

// pgTouch обновляет updated_at и возвращает ErrNotFound, если записи нет.
func pgTouch(ctx context.Context, db DBTX, id string) error {
	tag, err := db.Exec(ctx, `UPDATE posts SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pgFindByMeta(ctx context.Context, db DBTX, postType, key, value string) ([]*model.Post, error) {
	return pgLoadPosts(ctx, db, `
		SELECT `+selectPostColumns+`
		FROM posts p
		JOIN post_meta m ON m.post_id = p.id
		WHERE p.post_type = $1 AND m.meta_key = $2 AND m.meta_value = $3
		ORDER BY p.created_at ASC, p.id ASC`,
		postType, key, value)
}

// pgLoadPosts выполняет запрос, возвращающий колонки selectPostColumns,
// и подгружает метаданные найденных записей одним запросом.
func pgLoadPosts(ctx context.Context, db DBTX, query string, args ...any) ([]*model.Post, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		posts []*model.Post
		ids   []string
		byID  = make(map[string]*model.Post)
	)
	for rows.Next() {
		p := &model.Post{Meta: make(map[string]string)}
		if err := rows.Scan(&p.ID, &p.PostType, &p.Title, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		posts = append(posts, p)
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}
	// Соединение транзакции должно быть свободно до следующего запроса
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}

	metaRows, err := db.Query(ctx,
		`SELECT post_id, meta_key, meta_value FROM post_meta WHERE post_id = ANY($1::uuid[])`, ids)
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
