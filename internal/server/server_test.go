package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epfl-sti/epflws/internal/api/handlers"
	"github.com/epfl-sti/epflws/internal/api/middleware"
	"github.com/epfl-sti/epflws/internal/database"
	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/memento"
	"github.com/epfl-sti/epflws/internal/repository"
	"github.com/epfl-sti/epflws/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// directory — каталог в памяти: подразделения и сотрудники.
type directory struct {
	units   []*model.DirectoryEntry
	persons map[string]*model.DirectoryEntry
}

func (d *directory) QueryByUnitName(_ context.Context, abbrev string) ([]*model.DirectoryEntry, error) {
	var out []*model.DirectoryEntry
	for _, u := range d.units {
		if u.First(model.AttrOU) == abbrev {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *directory) QueryByUnitUniqueID(_ context.Context, uid string) ([]*model.DirectoryEntry, error) {
	var out []*model.DirectoryEntry
	for _, u := range d.units {
		if u.First(model.AttrUniqueIdentifier) == uid {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *directory) QueryPeopleInUnit(_ context.Context, dn string) ([]*model.DirectoryEntry, error) {
	return []*model.DirectoryEntry{{DN: "uid=a," + dn}, {DN: "uid=b," + dn}}, nil
}

func (d *directory) QueryPersonBySciper(_ context.Context, sciper string) (*model.DirectoryEntry, error) {
	return d.persons[sciper], nil
}

// feed — источник событий Memento.
type feed struct{}

func (feed) BaseURL() string { return "https://memento.epfl.ch" }

func (feed) FetchEvents(context.Context, string) ([]memento.Event, error) {
	return []memento.Event{{ID: "9", Title: "Open <day>"}}, nil
}

type testEnv struct {
	router http.Handler
	store  *repository.Store
	key    *rsa.PrivateKey
}

// setupRouter собирает маршрутизатор поверх SQLite и каталога в памяти.
// withAuth — включить JWT на изменяющих маршрутах.
func setupRouter(t *testing.T, withAuth bool) *testEnv {
	t.Helper()
	logger := testLogger()

	path := filepath.Join(t.TempDir(), "server.db")
	require.NoError(t, database.MigrateSQLite(path, logger))
	db, err := database.OpenSQLite(context.Background(), path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := repository.NewSQLiteStore(db)

	dir := &directory{
		units: []*model.DirectoryEntry{{
			DN: "ou=LABX,ou=sti,o=epfl,c=ch",
			Attributes: map[string][]string{
				model.AttrUniqueIdentifier: {"42"},
				model.AttrOU:               {"LABX"},
				model.AttrDescription:      {"Desc FR"},
				model.AttrDescriptionEN:    {"Desc EN"},
				model.AttrLabeledURI:       {"http://x.epfl.ch extra"},
				model.AttrUnitManager:      {"123456"},
			},
		}},
		persons: map[string]*model.DirectoryEntry{
			"123456": {DN: "uniqueIdentifier=123456,o=epfl,c=ch", Attributes: map[string][]string{
				model.AttrDisplayName: {"Grace Hopper"},
			}},
		},
	}

	persons := service.NewPersonService(store.Posts, store.AutoFields, dir, logger)
	labs := service.NewLabService(store.Posts, store.AutoFields, dir, persons, logger)
	labSync := service.NewLabSyncService(labs, store.SyncState, "ou=sti,o=epfl,c=ch", 0, logger)
	mementoSvc := service.NewMementoService(feed{}, 8, 0, logger)

	env := &testEnv{store: store}
	var jwtAuth *middleware.JWTAuth
	if withAuth {
		env.key, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		kf, err := keyfunc.NewJWKSetJSON(jwksJSON(&env.key.PublicKey))
		require.NoError(t, err)
		jwtAuth = middleware.NewJWTAuthWithKeyfunc(kf, "", []string{"editors"}, []string{"viewers"}, logger)
	}

	env.router = NewRouter(logger, Handlers{
		Health:  handlers.NewHealthHandler(database.NewSQLiteReadinessChecker(db), nil),
		Labs:    handlers.NewLabHandler(labs, labSync, logger),
		Persons: handlers.NewPersonHandler(persons, logger),
		Memento: handlers.NewMementoHandler(mementoSvc, logger),
	}, jwtAuth)
	return env
}

func jwksJSON(pub *rsa.PublicKey) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"keys": []map[string]any{{
		"kty": "RSA", "kid": "k1", "use": "sig", "alg": "RS256",
		"n": base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
	return data
}

func (e *testEnv) token(t *testing.T, groups ...string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":    "user-1",
		"groups": groups,
		"exp":    jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString(e.key)
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestRouter_LabLifecycle(t *testing.T) {
	env := setupRouter(t, false)

	// Лаборатории ещё нет
	rec := env.do(t, http.MethodGet, "/api/v1/labs/by-abbrev/LABX", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["error"].(map[string]any)["code"])

	rec = env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/LABX", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lab := decode(t, rec)
	id := lab["id"].(string)
	assert.Equal(t, "42", lab["unique_id"])
	assert.Equal(t, "http://x.epfl.ch", lab["website_url"])
	assert.Equal(t, float64(2), lab["member_count"])
	assert.Equal(t, true, lab["is_real"])
	assert.Equal(t, "sti", lab["unit"].(map[string]any)["parent"])

	rec = env.do(t, http.MethodGet, "/api/v1/labs/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Desc EN", decode(t, rec)["name"])

	rec = env.do(t, http.MethodGet, "/api/v1/labs/by-unique-id/42", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode(t, rec)["id"])

	rec = env.do(t, http.MethodGet, "/api/v1/labs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, float64(1), list["total"])
	assert.Equal(t, "ou=sti,o=epfl,c=ch", list["dn_suffix"])

	rec = env.do(t, http.MethodPut, "/api/v1/labs/"+id+"/not-a-lab", `{"not_a_lab": true}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["is_real"])

	rec = env.do(t, http.MethodPut, "/api/v1/labs/"+id+"/not-a-lab", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/labs/"+id+"/sync", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/labs/sync", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)
	assert.Equal(t, float64(1), result["total"])
	assert.Equal(t, float64(1), result["synced"])

	rec = env.do(t, http.MethodGet, "/api/v1/auto-fields/epfl-lab", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], model.MetaMemberCount)
}

func TestRouter_Errors(t *testing.T) {
	env := setupRouter(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/NOPE", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/labs/00000000-0000-0000-0000-000000000000", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Идентификатор не в формате UUID
	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/labs/abc", ""},
		{http.MethodGet, "/api/v1/labs/abc/manager", ""},
		{http.MethodPost, "/api/v1/labs/abc/sync", ""},
		{http.MethodPut, "/api/v1/labs/abc/not-a-lab", `{"not_a_lab": true}`},
	} {
		rec = env.do(t, req.method, req.path, req.body, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", req.method, req.path)
		assert.Equal(t, "NOT_FOUND", decode(t, rec)["error"].(map[string]any)["code"])
	}

	rec = env.do(t, http.MethodGet, "/api/v1/persons/not-a-sciper", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["error"].(map[string]any)["code"])

	rec = env.do(t, http.MethodPost, "/api/v1/persons/999999/sync", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PersonsAndManager(t *testing.T) {
	env := setupRouter(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/LABX", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/v1/labs/"+id+"/manager", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/persons/123456/sync", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/persons/123456", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Grace Hopper", decode(t, rec)["name"])

	rec = env.do(t, http.MethodGet, "/api/v1/labs/"+id+"/manager", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "123456", decode(t, rec)["sciper"])
}

func TestRouter_Auth(t *testing.T) {
	env := setupRouter(t, true)

	// Чтение открыто
	rec := env.do(t, http.MethodGet, "/api/v1/labs", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/LABX", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/LABX", "", env.token(t, "viewers"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/labs/by-abbrev/LABX", "", env.token(t, "editors"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_HealthAndMemento(t *testing.T) {
	env := setupRouter(t, false)

	rec := env.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// LDAP не настроен: degraded, но готов
	rec = env.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/memento?TMPL=widget", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<h2>Open &lt;day&gt;</h2>")
}
