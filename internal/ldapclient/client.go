// client.go — клиент к каталогу EPFL (LDAP).
// Каждый запрос открывает отдельное соединение с таймаутом.
// Операции: QueryByUnitName, QueryByUnitUniqueID, QueryPeopleInUnit,
// QueryPersonBySciper.
package ldapclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

// ErrUnavailable — каталог недоступен или отклонил запрос.
var ErrUnavailable = errors.New("каталог LDAP недоступен")

// Атрибуты, запрашиваемые для подразделений.
var unitAttributes = []string{
	"uniqueIdentifier", "ou", "cn", "description", "description;lang-en",
	"labeledURI", "unitManager", "postalAddress",
}

// Атрибуты, запрашиваемые для сотрудников.
var personAttributes = []string{
	"uniqueIdentifier", "displayName", "cn", "mail", "ou",
}

// Config — параметры подключения к каталогу.
type Config struct {
	// URL — ldap:// или ldaps:// адрес сервера
	URL string
	// BaseDN — корень поиска подразделений и сотрудников
	BaseDN string
	// BindDN, BindPassword — учётные данные (пустые — анонимный доступ)
	BindDN       string
	BindPassword string
	// Timeout — таймаут подключения и каждого запроса
	Timeout time.Duration
}

// Client — клиент к каталогу LDAP.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New создаёт клиент к каталогу.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ldap_client")),
	}
}

// QueryByUnitName ищет подразделения по аббревиатуре (атрибут ou).
func (c *Client) QueryByUnitName(ctx context.Context, abbrev string) ([]*model.DirectoryEntry, error) {
	return c.search(ctx, c.cfg.BaseDN, ldap.ScopeWholeSubtree, UnitByNameFilter(abbrev), unitAttributes)
}

// QueryByUnitUniqueID ищет подразделения по uniqueIdentifier.
func (c *Client) QueryByUnitUniqueID(ctx context.Context, uniqueID string) ([]*model.DirectoryEntry, error) {
	return c.search(ctx, c.cfg.BaseDN, ldap.ScopeWholeSubtree, UnitByUniqueIDFilter(uniqueID), unitAttributes)
}

// QueryPeopleInUnit возвращает сотрудников, непосредственно входящих в подразделение dn.
func (c *Client) QueryPeopleInUnit(ctx context.Context, dn string) ([]*model.DirectoryEntry, error) {
	return c.search(ctx, dn, ldap.ScopeSingleLevel, "(objectClass=person)", personAttributes)
}

// QueryPersonBySciper ищет сотрудника по SCIPER. Возвращает nil, если не найден.
func (c *Client) QueryPersonBySciper(ctx context.Context, sciper string) (*model.DirectoryEntry, error) {
	entries, err := c.search(ctx, c.cfg.BaseDN, ldap.ScopeWholeSubtree, PersonBySciperFilter(sciper), personAttributes)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	// Сотрудник с несколькими аккредитациями встречается в каталоге несколько раз
	return entries[0], nil
}

// CheckReady проверяет доступность каталога (подключение и bind).
// Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("LDAP недоступен: %v", err)
	}
	conn.Close()
	return "ok", "подключение активно"
}

// search выполняет поиск и конвертирует результат в model.DirectoryEntry.
func (c *Client) search(ctx context.Context, baseDN string, scope int, filter string, attrs []string) ([]*model.DirectoryEntry, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Отмена контекста прерывает запрос закрытием соединения
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := ldap.NewSearchRequest(
		baseDN, scope, ldap.NeverDerefAliases,
		0, int(c.cfg.Timeout/time.Second), false,
		filter, attrs, nil,
	)

	start := time.Now()
	res, err := conn.Search(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
		}
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: поиск %s в %s: %w", ErrUnavailable, filter, baseDN, err)
	}

	c.logger.Debug("Поиск LDAP выполнен",
		slog.String("base_dn", baseDN),
		slog.String("filter", filter),
		slog.Int("entries", len(res.Entries)),
		slog.Duration("duration", time.Since(start)),
	)

	entries := make([]*model.DirectoryEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, EntryFromLDAP(e))
	}
	return entries, nil
}

// connect открывает соединение и выполняет bind, если заданы учётные данные.
func (c *Client) connect(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	conn, err := ldap.DialURL(c.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: c.cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("%w: подключение к %s: %w", ErrUnavailable, c.cfg.URL, err)
	}
	conn.SetTimeout(c.cfg.Timeout)

	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: bind %s: %w", ErrUnavailable, c.cfg.BindDN, err)
		}
	}
	return conn, nil
}

// --- Фильтры и конвертация ---

// UnitByNameFilter — фильтр поиска подразделения по аббревиатуре.
func UnitByNameFilter(abbrev string) string {
	return fmt.Sprintf("(&(objectClass=EPFLorganizationalUnit)(ou=%s))", ldap.EscapeFilter(abbrev))
}

// UnitByUniqueIDFilter — фильтр поиска подразделения по uniqueIdentifier.
func UnitByUniqueIDFilter(uniqueID string) string {
	return fmt.Sprintf("(&(objectClass=EPFLorganizationalUnit)(uniqueIdentifier=%s))", ldap.EscapeFilter(uniqueID))
}

// PersonBySciperFilter — фильтр поиска сотрудника по SCIPER.
func PersonBySciperFilter(sciper string) string {
	return fmt.Sprintf("(&(objectClass=person)(uniqueIdentifier=%s))", ldap.EscapeFilter(sciper))
}

// EntryFromLDAP конвертирует запись go-ldap в model.DirectoryEntry.
// Имена атрибутов приводятся к нижнему регистру, значения одноимённых
// атрибутов объединяются.
func EntryFromLDAP(e *ldap.Entry) *model.DirectoryEntry {
	entry := &model.DirectoryEntry{
		DN:         e.DN,
		Attributes: make(map[string][]string, len(e.Attributes)),
	}
	for _, a := range e.Attributes {
		name := strings.ToLower(a.Name)
		entry.Attributes[name] = append(entry.Attributes[name], a.Values...)
	}
	return entry
}
