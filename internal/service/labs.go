// labs.go — сервис лабораторий: разрешение идентичности по каталогу LDAP,
// идемпотентное создание записей и синхронизация метаданных.
//
// Единственный ключ дедупликации — uniqueIdentifier подразделения
// (meta epfl_unique_id). Аббревиатура (ou) не уникальна и используется
// только для поиска в каталоге.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/repository"
)

// Directory — запросы к каталогу EPFL.
// Реализуется ldapclient.Client.
type Directory interface {
	QueryByUnitName(ctx context.Context, abbrev string) ([]*model.DirectoryEntry, error)
	QueryByUnitUniqueID(ctx context.Context, uniqueID string) ([]*model.DirectoryEntry, error)
	QueryPeopleInUnit(ctx context.Context, dn string) ([]*model.DirectoryEntry, error)
	QueryPersonBySciper(ctx context.Context, sciper string) (*model.DirectoryEntry, error)
}

// MetaContributor добавляет метаданные лаборатории при синхронизации.
// Получает снимок с уже применёнными основными полями.
// Возвращённые пары записываются после основных полей в той же операции.
type MetaContributor interface {
	ContributeMeta(ctx context.Context, lab *Lab) ([]model.MetaPair, error)
}

// MetaContributorFunc — адаптер функции к MetaContributor.
type MetaContributorFunc func(ctx context.Context, lab *Lab) ([]model.MetaPair, error)

// ContributeMeta вызывает f.
func (f MetaContributorFunc) ContributeMeta(ctx context.Context, lab *Lab) ([]model.MetaPair, error) {
	return f(ctx, lab)
}

// Lab — дескриптор лаборатории: снимок из хранилища и (необязательно)
// закэшированная запись каталога. Дескрипторы живут в пределах одного
// запроса и не разделяются между горутинами.
type Lab struct {
	model.Lab

	entry *model.DirectoryEntry
}

// DirectoryEntry возвращает закэшированную запись каталога или nil.
func (l *Lab) DirectoryEntry() *model.DirectoryEntry {
	return l.entry
}

// LabOption — опция LabService.
type LabOption func(*LabService)

// WithMetaContributors регистрирует дополнительные источники метаданных.
func WithMetaContributors(contributors ...MetaContributor) LabOption {
	return func(s *LabService) {
		s.contributors = append(s.contributors, contributors...)
	}
}

// LabService — бизнес-логика лабораторий.
type LabService struct {
	posts        repository.PostRepository
	autoFields   repository.AutoFieldRepository
	directory    Directory
	persons      *PersonService
	contributors []MetaContributor
	logger       *slog.Logger
}

// NewLabService создаёт сервис лабораторий.
func NewLabService(
	posts repository.PostRepository,
	autoFields repository.AutoFieldRepository,
	directory Directory,
	persons *PersonService,
	logger *slog.Logger,
	opts ...LabOption,
) *LabService {
	s := &LabService{
		posts:      posts,
		autoFields: autoFields,
		directory:  directory,
		persons:    persons,
		logger:     logger.With(slog.String("component", "lab_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateByAbbrev находит подразделение по аббревиатуре в каталоге и
// возвращает (создавая при необходимости) соответствующую лабораторию.
// При нескольких совпадениях используется первое.
func (s *LabService) GetOrCreateByAbbrev(ctx context.Context, abbrev string) (*Lab, error) {
	entries, err := s.directory.QueryByUnitName(ctx, abbrev)
	if err != nil {
		return nil, directoryError(err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: неизвестная аббревиатура %s", ErrLabNotFound, abbrev)
	}
	return s.GetOrCreateByEntry(ctx, entries[0])
}

// GetOrCreateByEntry возвращает лабораторию для записи каталога, создавая её,
// если записи с таким uniqueIdentifier ещё нет. Запись каталога кэшируется
// в дескрипторе в обоих случаях.
func (s *LabService) GetOrCreateByEntry(ctx context.Context, entry *model.DirectoryEntry) (*Lab, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: пустая запись", ErrMalformedEntry)
	}
	uid := entry.First(model.AttrUniqueIdentifier)
	if uid == "" {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEntry, entry.DN)
	}

	post, created, err := s.posts.GetOrCreateByMeta(ctx, model.PostTypeLab, model.MetaUniqueID, uid)
	if err != nil {
		return nil, fmt.Errorf("get-or-create лаборатории %s: %w", uid, err)
	}
	if created {
		s.logger.Info("Лаборатория создана",
			slog.String("id", post.ID),
			slog.String("unique_id", uid),
			slog.String("dn", entry.DN),
		)
	}

	return &Lab{Lab: *model.LabFromPost(post), entry: entry}, nil
}

// GetByUniqueID возвращает лабораторию по uniqueIdentifier или nil, если её нет.
func (s *LabService) GetByUniqueID(ctx context.Context, uniqueID string) (*Lab, error) {
	posts, err := s.posts.FindByMeta(ctx, model.PostTypeLab, model.MetaUniqueID, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("поиск лаборатории %s: %w", uniqueID, err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &Lab{Lab: *model.LabFromPost(posts[0])}, nil
}

// GetByAbbrev возвращает лабораторию по аббревиатуре, только если каталог
// однозначно (ровно одна запись) сопоставляет её подразделению.
// Иначе — nil. Не использовать там, где важна идентичность.
func (s *LabService) GetByAbbrev(ctx context.Context, abbrev string) (*Lab, error) {
	entries, err := s.directory.QueryByUnitName(ctx, abbrev)
	if err != nil {
		return nil, directoryError(err)
	}
	if len(entries) != 1 {
		return nil, nil
	}
	uid := entries[0].First(model.AttrUniqueIdentifier)
	if uid == "" {
		return nil, nil
	}
	return s.GetByUniqueID(ctx, uid)
}

// FindAllByDNSuffix возвращает все лаборатории, DN которых содержит
// ","+suffix, упорядоченные по аббревиатуре.
func (s *LabService) FindAllByDNSuffix(ctx context.Context, suffix string) ([]*Lab, error) {
	posts, err := s.posts.FindByMetaContains(ctx, model.PostTypeLab, model.MetaDN, ","+suffix, model.MetaOU)
	if err != nil {
		return nil, fmt.Errorf("поиск лабораторий по суффиксу %s: %w", suffix, err)
	}
	labs := make([]*Lab, 0, len(posts))
	for _, p := range posts {
		labs = append(labs, &Lab{Lab: *model.LabFromPost(p)})
	}
	return labs, nil
}

// Load возвращает лабораторию по локальному идентификатору.
func (s *LabService) Load(ctx context.Context, id string) (*Lab, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %s", ErrLabNotFound, id)
		}
		return nil, fmt.Errorf("загрузка лаборатории %s: %w", id, err)
	}
	if post.PostType != model.PostTypeLab {
		return nil, fmt.Errorf("%w: запись %s имеет тип %s", ErrLabNotFound, id, post.PostType)
	}
	return &Lab{Lab: *model.LabFromPost(post)}, nil
}

// Sync обновляет лабораторию по каталогу: заголовок, основные поля,
// численность, поля от MetaContributor и extra — одной операцией записи.
// Записанные ключи добавляются в автополя. Снимок дескриптора обновляется.
//
// Ошибки: ErrLabNotFound (uniqueIdentifier отсутствует в каталоге),
// ErrLabUnicity (несколько записей), ErrDirectoryUnavailable.
// При ошибке разрешения в хранилище ничего не записывается.
func (s *LabService) Sync(ctx context.Context, lab *Lab, extra ...model.MetaPair) error {
	entry, err := s.resolveEntry(ctx, lab)
	if err != nil {
		return err
	}

	members, err := s.directory.QueryPeopleInUnit(ctx, entry.DN)
	if err != nil {
		return directoryError(err)
	}

	title := entry.First(model.AttrDescriptionEN)
	meta := []model.MetaPair{
		{Key: model.MetaUniqueID, Value: lab.UniqueID},
		{Key: model.MetaWebsiteURL, Value: websiteURL(entry.First(model.AttrLabeledURI))},
		{Key: model.MetaOU, Value: entry.First(model.AttrOU)},
		{Key: model.MetaDN, Value: entry.DN},
		{Key: model.MetaDescriptionFR, Value: entry.First(model.AttrDescription)},
		{Key: model.MetaDescriptionEN, Value: title},
		{Key: model.MetaManager, Value: entry.First(model.AttrUnitManager)},
		{Key: model.MetaPostalAddress, Value: entry.First(model.AttrPostalAddress)},
		{Key: model.MetaMemberCount, Value: strconv.Itoa(len(members))},
	}

	// Источники дополнительных полей видят снимок с основными полями
	preview := &Lab{Lab: lab.Lab.WithMeta(title, meta), entry: entry}
	for _, c := range s.contributors {
		more, err := c.ContributeMeta(ctx, preview)
		if err != nil {
			return fmt.Errorf("дополнительные поля лаборатории %s: %w", lab.UniqueID, err)
		}
		meta = append(meta, more...)
	}
	meta = append(meta, extra...)

	if err := s.posts.Update(ctx, lab.ID, title, meta); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: id %s", ErrLabNotFound, lab.ID)
		}
		return fmt.Errorf("запись лаборатории %s: %w", lab.UniqueID, err)
	}
	if err := s.autoFields.Append(ctx, model.PostTypeLab, model.MetaKeys(meta)); err != nil {
		return fmt.Errorf("автополя лаборатории: %w", err)
	}

	if err := s.refresh(ctx, lab); err != nil {
		return err
	}

	s.logger.Debug("Лаборатория синхронизирована",
		slog.String("id", lab.ID),
		slog.String("abbrev", lab.Abbrev),
		slog.Int("member_count", len(members)),
	)
	return nil
}

// Manager возвращает руководителя лаборатории или nil, если он неизвестен.
func (s *LabService) Manager(ctx context.Context, lab *Lab) (*model.Person, error) {
	if !sciperPattern.MatchString(lab.ManagerSciper) {
		return nil, nil
	}
	return s.persons.FindBySciper(ctx, lab.ManagerSciper)
}

// SetNotALab выставляет или снимает флаг «не лаборатория».
func (s *LabService) SetNotALab(ctx context.Context, lab *Lab, notALab bool) error {
	value := "0"
	if notALab {
		value = "1"
	}
	if err := s.posts.SetMeta(ctx, lab.ID, model.MetaNotALab, value); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: id %s", ErrLabNotFound, lab.ID)
		}
		return fmt.Errorf("флаг not_a_lab лаборатории %s: %w", lab.ID, err)
	}
	return s.refresh(ctx, lab)
}

// AutoFields возвращает ключи, управляемые синхронизацией, для типа записи.
func (s *LabService) AutoFields(ctx context.Context, postType string) ([]string, error) {
	return s.autoFields.List(ctx, postType)
}

// resolveEntry возвращает закэшированную запись каталога или запрашивает её
// по uniqueIdentifier. Результат кэшируется в дескрипторе.
func (s *LabService) resolveEntry(ctx context.Context, lab *Lab) (*model.DirectoryEntry, error) {
	if lab.entry != nil {
		return lab.entry, nil
	}

	entries, err := s.directory.QueryByUnitUniqueID(ctx, lab.UniqueID)
	if err != nil {
		return nil, directoryError(err)
	}
	switch len(entries) {
	case 0:
		return nil, fmt.Errorf("%w: неизвестный uniqueIdentifier %s", ErrLabNotFound, lab.UniqueID)
	case 1:
		lab.entry = entries[0]
		return lab.entry, nil
	default:
		return nil, fmt.Errorf("%w: %d записей для uniqueIdentifier %s",
			ErrLabUnicity, len(entries), lab.UniqueID)
	}
}

// refresh перечитывает снимок лаборатории из хранилища.
func (s *LabService) refresh(ctx context.Context, lab *Lab) error {
	post, err := s.posts.Get(ctx, lab.ID)
	if err != nil {
		return fmt.Errorf("перечитывание лаборатории %s: %w", lab.ID, err)
	}
	lab.Lab = *model.LabFromPost(post)
	return nil
}

// websiteURL — первый токен labeledURI ("https://x.epfl.ch Описание").
func websiteURL(labeledURI string) string {
	url, _, _ := strings.Cut(labeledURI, " ")
	return url
}

// directoryError оборачивает ошибку каталога в ErrDirectoryUnavailable.
func directoryError(err error) error {
	if errors.Is(err, ErrDirectoryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
}
