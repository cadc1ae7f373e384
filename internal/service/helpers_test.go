package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epfl-sti/epflws/internal/database"
	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupStore создаёт временную базу SQLite с применёнными миграциями.
func setupStore(t *testing.T) *repository.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "service.db")
	logger := testLogger()
	require.NoError(t, database.MigrateSQLite(path, logger))

	db, err := database.OpenSQLite(context.Background(), path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewSQLiteStore(db)
}

// fakeDirectory — каталог в памяти.
type fakeDirectory struct {
	mu sync.Mutex

	units   []*model.DirectoryEntry
	members map[string]int
	persons map[string]*model.DirectoryEntry
	err     error

	uniqueIDQueries int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members: make(map[string]int),
		persons: make(map[string]*model.DirectoryEntry),
	}
}

func (d *fakeDirectory) addUnit(e *model.DirectoryEntry, members int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.units = append(d.units, e)
	d.members[e.DN] = members
}

func (d *fakeDirectory) QueryByUnitName(_ context.Context, abbrev string) ([]*model.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []*model.DirectoryEntry
	for _, u := range d.units {
		for _, ou := range u.Attributes[model.AttrOU] {
			if ou == abbrev {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (d *fakeDirectory) QueryByUnitUniqueID(_ context.Context, uniqueID string) ([]*model.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uniqueIDQueries++
	if d.err != nil {
		return nil, d.err
	}
	var out []*model.DirectoryEntry
	for _, u := range d.units {
		if u.First(model.AttrUniqueIdentifier) == uniqueID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) QueryPeopleInUnit(_ context.Context, dn string) ([]*model.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]*model.DirectoryEntry, d.members[dn])
	for i := range out {
		out[i] = &model.DirectoryEntry{DN: "uid=p," + dn}
	}
	return out, nil
}

func (d *fakeDirectory) QueryPersonBySciper(_ context.Context, sciper string) (*model.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.persons[sciper], nil
}

var errLDAPDown = errors.New("ldap: connection refused")

// labEntry — запись подразделения из сценария LABX.
func labEntry(uid, abbrev string) *model.DirectoryEntry {
	dn := "ou=" + abbrev + ",ou=sti,o=epfl,c=ch"
	return &model.DirectoryEntry{
		DN: dn,
		Attributes: map[string][]string{
			model.AttrUniqueIdentifier: {uid},
			model.AttrOU:               {abbrev},
			model.AttrDescription:      {"Desc FR"},
			model.AttrDescriptionEN:    {"Desc EN"},
			model.AttrLabeledURI:       {"http://x.epfl.ch extra"},
			model.AttrUnitManager:      {"123456"},
			model.AttrPostalAddress:    {"Addr"},
		},
	}
}

// services собирает сервисы поверх временного хранилища и фейкового каталога.
func services(t *testing.T, opts ...LabOption) (*LabService, *PersonService, *repository.Store, *fakeDirectory) {
	t.Helper()
	store := setupStore(t)
	dir := newFakeDirectory()
	persons := NewPersonService(store.Posts, store.AutoFields, dir, testLogger())
	labs := NewLabService(store.Posts, store.AutoFields, dir, persons, testLogger(), opts...)
	return labs, persons, store, dir
}
