// client.go — HTTP-клиент к Memento API.
package memento

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ошибки клиента Memento.
var (
	// ErrURLNotValidated — URL не прошёл проверку схемы и хоста.
	ErrURLNotValidated = errors.New("URL не прошёл проверку")
	// ErrBadResponse — некорректный ответ Memento API.
	ErrBadResponse = errors.New("некорректный ответ Memento API")
)

// maxResponseSize — ограничение размера ответа API.
const maxResponseSize = 8 << 20

// Client — HTTP-клиент к Memento API.
type Client struct {
	baseURL     string
	allowedHost string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New создаёт клиент к Memento API.
// allowedHost — единственный хост, к которому разрешены запросы.
// httpClient может быть nil (используется клиент с таймаутом timeout).
func New(baseURL, allowedHost string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		allowedHost: strings.ToLower(allowedHost),
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "memento_client")),
	}
}

// BaseURL возвращает базовый URL API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ValidateURL проверяет схему (http/https) и хост URL.
func (c *Client) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrURLNotValidated, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s: недопустимая схема %q", ErrURLNotValidated, raw, u.Scheme)
	}
	if strings.ToLower(u.Hostname()) != c.allowedHost {
		return nil, fmt.Errorf("%w: %s: хост %q не разрешён", ErrURLNotValidated, raw, u.Hostname())
	}
	return u, nil
}

// FetchEvents проверяет URL и загружает список событий.
func (c *Client) FetchEvents(ctx context.Context, raw string) ([]Event, error) {
	u, err := c.ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к Memento: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа Memento: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrBadResponse, resp.StatusCode)
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("События Memento загружены",
		slog.String("url", u.String()),
		slog.Int("events", len(events)),
		slog.Duration("duration", time.Since(start)),
	)
	return events, nil
}
