// persons.go — реестр сотрудников (записи типа epfl-person, ключ — SCIPER).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/repository"
)

var sciperPattern = regexp.MustCompile(`^[0-9]{1,8}$`)

// PersonService — поиск и синхронизация сотрудников.
type PersonService struct {
	posts      repository.PostRepository
	autoFields repository.AutoFieldRepository
	directory  Directory
	logger     *slog.Logger
}

// NewPersonService создаёт реестр сотрудников.
func NewPersonService(
	posts repository.PostRepository,
	autoFields repository.AutoFieldRepository,
	directory Directory,
	logger *slog.Logger,
) *PersonService {
	return &PersonService{
		posts:      posts,
		autoFields: autoFields,
		directory:  directory,
		logger:     logger.With(slog.String("component", "person_service")),
	}
}

// FindBySciper возвращает сотрудника из хранилища или nil, если его нет.
func (s *PersonService) FindBySciper(ctx context.Context, sciper string) (*model.Person, error) {
	if err := validateSciper(sciper); err != nil {
		return nil, err
	}
	posts, err := s.posts.FindByMeta(ctx, model.PostTypePerson, model.MetaSciper, sciper)
	if err != nil {
		return nil, fmt.Errorf("поиск сотрудника %s: %w", sciper, err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return model.PersonFromPost(posts[0]), nil
}

// SyncFromDirectory создаёт или обновляет сотрудника по данным каталога.
func (s *PersonService) SyncFromDirectory(ctx context.Context, sciper string) (*model.Person, error) {
	if err := validateSciper(sciper); err != nil {
		return nil, err
	}

	entry, err := s.directory.QueryPersonBySciper(ctx, sciper)
	if err != nil {
		return nil, directoryError(err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: SCIPER %s", ErrPersonNotFound, sciper)
	}

	post, created, err := s.posts.GetOrCreateByMeta(ctx, model.PostTypePerson, model.MetaSciper, sciper)
	if err != nil {
		return nil, fmt.Errorf("get-or-create сотрудника %s: %w", sciper, err)
	}

	name := entry.First(model.AttrDisplayName)
	if name == "" {
		name = entry.First(model.AttrCN)
	}
	meta := []model.MetaPair{
		{Key: model.MetaSciper, Value: sciper},
		{Key: model.MetaEmail, Value: entry.First(model.AttrMail)},
	}
	if err := s.posts.Update(ctx, post.ID, name, meta); err != nil {
		return nil, fmt.Errorf("запись сотрудника %s: %w", sciper, err)
	}
	if err := s.autoFields.Append(ctx, model.PostTypePerson, model.MetaKeys(meta)); err != nil {
		return nil, fmt.Errorf("автополя сотрудника: %w", err)
	}

	if created {
		s.logger.Info("Сотрудник создан", slog.String("sciper", sciper), slog.String("id", post.ID))
	}
	return &model.Person{ID: post.ID, Sciper: sciper, Name: name, Email: entry.First(model.AttrMail)}, nil
}

func validateSciper(sciper string) error {
	if !sciperPattern.MatchString(sciper) {
		return fmt.Errorf("%w: некорректный SCIPER %q", ErrValidation, sciper)
	}
	return nil
}
