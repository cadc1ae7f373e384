// Пакет config — загрузка и валидация конфигурации epflws
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Поддерживаемые бэкенды хранилища метаданных.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSQLite   = "sqlite"
)

// Config содержит все параметры конфигурации epflws.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище метаданных ---

	// Бэкенд: postgres или sqlite
	StoreBackend string
	// Путь к файлу SQLite (для StoreBackend = sqlite)
	SQLitePath string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- LDAP ---

	// URL каталога (ldap:// или ldaps://)
	LDAPURL string
	// Base DN для поиска подразделений и сотрудников
	LDAPBaseDN string
	// Учётные данные для bind (пустые — анонимный доступ)
	LDAPBindDN       string
	LDAPBindPassword string
	// Таймаут подключения и запросов
	LDAPTimeout time.Duration

	// --- Лаборатории ---

	// Суффикс DN, определяющий множество синхронизируемых лабораторий
	LabDNSuffix string
	// Интервал периодической синхронизации (0 — отключена)
	LabSyncInterval time.Duration

	// --- Memento ---

	// Базовый URL Memento API
	MementoURL string
	// Хост, которому разрешено отвечать на запросы ленты
	MementoAllowedHost string
	// Таймаут HTTP-запросов к Memento
	MementoTimeout time.Duration
	// Размер LRU-кэша ответов (записей)
	MementoCacheSize int
	// TTL записи кэша (0 — кэш отключён)
	MementoCacheTTL time.Duration

	// --- JWT ---

	// URL JWKS endpoint (пустой — аутентификация изменяющих запросов отключена)
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пустой — не проверяется)
	JWTIssuer string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Маппинг групп → ролей ---

	// Группы, дающие роль editor (через запятую)
	RoleEditorGroups []string
	// Группы, дающие роль viewer (через запятую)
	RoleViewerGroups []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
// Перед чтением переменных подгружается .env файл (WS_ENV_FILE, по умолчанию .env).
// Уже заданные переменные окружения имеют приоритет над значениями из файла.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("WS_ENV_FILE", ".env")); err != nil {
		return nil, fmt.Errorf("WS_ENV_FILE: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("WS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("WS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("WS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("WS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("WS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("WS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("WS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	cfg.StoreBackend = getEnvDefault("WS_STORE_BACKEND", StoreBackendPostgres)
	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	case StoreBackendSQLite:
		cfg.SQLitePath = getEnvDefault("WS_SQLITE_PATH", "epflws.db")
	default:
		return nil, fmt.Errorf("WS_STORE_BACKEND: недопустимое значение %q, допустимые: postgres, sqlite", cfg.StoreBackend)
	}

	// --- LDAP ---

	cfg.LDAPURL = getEnvDefault("WS_LDAP_URL", "ldap://ldap.epfl.ch:389")
	if u, perr := url.Parse(cfg.LDAPURL); perr != nil || (u.Scheme != "ldap" && u.Scheme != "ldaps") {
		return nil, fmt.Errorf("WS_LDAP_URL: ожидается ldap:// или ldaps:// URL, получено %q", cfg.LDAPURL)
	}
	cfg.LDAPBaseDN = getEnvDefault("WS_LDAP_BASE_DN", "o=epfl,c=ch")
	cfg.LDAPBindDN = getEnvDefault("WS_LDAP_BIND_DN", "")
	cfg.LDAPBindPassword = getEnvDefault("WS_LDAP_BIND_PASSWORD", "")
	cfg.LDAPTimeout, err = getEnvDuration("WS_LDAP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_LDAP_TIMEOUT: %w", err)
	}

	// --- Лаборатории ---

	cfg.LabDNSuffix = getEnvDefault("WS_LAB_DN_SUFFIX", "ou=sti,o=epfl,c=ch")
	cfg.LabSyncInterval, err = getEnvDuration("WS_LAB_SYNC_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("WS_LAB_SYNC_INTERVAL: %w", err)
	}
	if cfg.LabSyncInterval < 0 {
		return nil, fmt.Errorf("WS_LAB_SYNC_INTERVAL: отрицательный интервал %s", cfg.LabSyncInterval)
	}

	// --- Memento ---

	cfg.MementoURL = strings.TrimRight(getEnvDefault("WS_MEMENTO_URL", "https://memento.epfl.ch"), "/")
	cfg.MementoAllowedHost = getEnvDefault("WS_MEMENTO_ALLOWED_HOST", "memento.epfl.ch")
	cfg.MementoTimeout, err = getEnvDuration("WS_MEMENTO_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_MEMENTO_TIMEOUT: %w", err)
	}
	cfg.MementoCacheSize, err = getEnvInt("WS_MEMENTO_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("WS_MEMENTO_CACHE_SIZE: %w", err)
	}
	if cfg.MementoCacheSize < 1 {
		return nil, fmt.Errorf("WS_MEMENTO_CACHE_SIZE: значение %d должно быть положительным", cfg.MementoCacheSize)
	}
	cfg.MementoCacheTTL, err = getEnvDuration("WS_MEMENTO_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("WS_MEMENTO_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("WS_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("WS_JWT_ISSUER", "")
	cfg.JWKSRefreshInterval, err = getEnvDuration("WS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("WS_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("WS_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_JWT_LEEWAY: %w", err)
	}

	// --- Маппинг групп → ролей ---

	cfg.RoleEditorGroups = parseCSV(getEnvDefault("WS_ROLE_EDITOR_GROUPS", "epfl-ws-editors"))
	cfg.RoleViewerGroups = parseCSV(getEnvDefault("WS_ROLE_VIEWER_GROUPS", "epfl-ws-viewers"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("WS_DEPHEALTH_GROUP", "epfl-ws")
	cfg.DephealthCheckInterval, err = getEnvDuration("WS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("WS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadPostgres читает параметры подключения к PostgreSQL.
func loadPostgres(cfg *Config) error {
	var err error

	cfg.DBHost, err = getEnvRequired("WS_DB_HOST")
	if err != nil {
		return err
	}
	cfg.DBPort, err = getEnvInt("WS_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("WS_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("WS_DB_NAME")
	if err != nil {
		return err
	}
	cfg.DBUser, err = getEnvRequired("WS_DB_USER")
	if err != nil {
		return err
	}
	cfg.DBPassword, err = getEnvRequired("WS_DB_PASSWORD")
	if err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("WS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("WS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// AuthEnabled сообщает, включена ли JWT-аутентификация изменяющих запросов.
func (c *Config) AuthEnabled() bool {
	return c.JWTJWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает .env файл. Отсутствие файла — не ошибка.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("чтение %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
