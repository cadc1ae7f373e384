package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"WS_DB_HOST":     "localhost",
		"WS_DB_NAME":     "epflws",
		"WS_DB_USER":     "epflws",
		"WS_DB_PASSWORD": "secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.StoreBackend != StoreBackendPostgres {
		t.Errorf("StoreBackend = %q, ожидается postgres", cfg.StoreBackend)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.LDAPURL != "ldap://ldap.epfl.ch:389" {
		t.Errorf("LDAPURL = %q, ожидается ldap://ldap.epfl.ch:389", cfg.LDAPURL)
	}
	if cfg.LDAPBaseDN != "o=epfl,c=ch" {
		t.Errorf("LDAPBaseDN = %q, ожидается o=epfl,c=ch", cfg.LDAPBaseDN)
	}
	if cfg.LabSyncInterval != 0 {
		t.Errorf("LabSyncInterval = %v, ожидается 0 (отключено)", cfg.LabSyncInterval)
	}
	if cfg.MementoAllowedHost != "memento.epfl.ch" {
		t.Errorf("MementoAllowedHost = %q, ожидается memento.epfl.ch", cfg.MementoAllowedHost)
	}
	if cfg.MementoCacheTTL != 5*time.Minute {
		t.Errorf("MementoCacheTTL = %v, ожидается 5m", cfg.MementoCacheTTL)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled() = true, ожидается false без WS_JWT_JWKS_URL")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_SQLiteDoesNotRequireDB(t *testing.T) {
	setEnvs(t, map[string]string{
		"WS_STORE_BACKEND": "sqlite",
		"WS_SQLITE_PATH":   "/tmp/ws.db",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.SQLitePath != "/tmp/ws.db" {
		t.Errorf("SQLitePath = %q, ожидается /tmp/ws.db", cfg.SQLitePath)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{"WS_DB_HOST", "WS_DB_NAME", "WS_DB_USER", "WS_DB_PASSWORD"}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, key)
			setEnvs(t, envs)
			t.Setenv(key, "")

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s должен вернуть ошибку", key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт вне диапазона", "WS_PORT", "70000"},
		{"некорректный порт", "WS_PORT", "abc"},
		{"уровень логов", "WS_LOG_LEVEL", "trace"},
		{"формат логов", "WS_LOG_FORMAT", "xml"},
		{"бэкенд", "WS_STORE_BACKEND", "mysql"},
		{"ssl mode", "WS_DB_SSL_MODE", "prefer"},
		{"ldap url", "WS_LDAP_URL", "http://ldap.epfl.ch"},
		{"интервал синхронизации", "WS_LAB_SYNC_INTERVAL", "-1m"},
		{"длительность", "WS_MEMENTO_TIMEOUT", "10"},
		{"размер кэша", "WS_MEMENTO_CACHE_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "WS_DB_HOST=db.local\nWS_DB_NAME=ws\nWS_DB_USER=ws\nWS_DB_PASSWORD=pw\nWS_PORT=9090\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись .env: %v", err)
	}

	t.Setenv("WS_ENV_FILE", path)
	// Значение из окружения имеет приоритет над файлом
	t.Setenv("WS_PORT", "9191")
	for _, key := range []string{"WS_DB_HOST", "WS_DB_NAME", "WS_DB_USER", "WS_DB_PASSWORD"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.DBHost != "db.local" {
		t.Errorf("DBHost = %q, ожидается db.local", cfg.DBHost)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, ожидается 9191", cfg.Port)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("WS_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if _, err := Load(); err != nil {
		t.Fatalf("Load() с отсутствующим .env вернул ошибку: %v", err)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, b ,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV = %v, ожидается %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseCSV[%d] = %q, ожидается %q", i, got[i], want[i])
		}
	}
	if parseCSV("") != nil {
		t.Error("parseCSV(\"\") должен вернуть nil")
	}
}

func TestDatabaseURL_NoPassword(t *testing.T) {
	cfg := &Config{DBHost: "h", DBPort: 5432, DBName: "n", DBUser: "u", DBPassword: "secret"}
	if got := cfg.DatabaseURL(); got != "postgres://u@h:5432/n" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}
