// memento.go — лента событий Memento: построение URL, загрузка и рендеринг.
// Необязательный LRU-кэш событий с TTL (ключ — URL запроса).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/epfl-sti/epflws/internal/memento"
)

// Prometheus-метрики кэша Memento.
var (
	mementoCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epflws_memento_cache_hits_total",
		Help: "Общее количество попаданий в кэш событий Memento.",
	})
	mementoCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epflws_memento_cache_misses_total",
		Help: "Общее количество промахов кэша событий Memento.",
	})
)

// EventFetcher — загрузка событий по URL. Реализуется memento.Client.
type EventFetcher interface {
	BaseURL() string
	FetchEvents(ctx context.Context, url string) ([]memento.Event, error)
}

// MementoService — рендеринг ленты событий Memento.
type MementoService struct {
	client EventFetcher
	// nil — кэш отключён
	cache  *expirable.LRU[string, []memento.Event]
	logger *slog.Logger
}

// NewMementoService создаёт сервис ленты событий.
// ttl <= 0 отключает кэш.
func NewMementoService(client EventFetcher, cacheSize int, ttl time.Duration, logger *slog.Logger) *MementoService {
	s := &MementoService{
		client: client,
		logger: logger.With(slog.String("component", "memento_service")),
	}
	if ttl > 0 && cacheSize > 0 {
		s.cache = expirable.NewLRU[string, []memento.Event](cacheSize, nil, ttl)
	}
	return s
}

// Events возвращает события для набора атрибутов.
// URL, не прошедший проверку, логируется и даёт пустой список без ошибки.
func (s *MementoService) Events(ctx context.Context, attrs memento.Attributes) ([]memento.Event, error) {
	url := memento.BuildURL(s.client.BaseURL(), attrs)

	if s.cache != nil {
		if events, ok := s.cache.Get(url); ok {
			mementoCacheHitsTotal.Inc()
			return events, nil
		}
		mementoCacheMissesTotal.Inc()
	}

	events, err := s.client.FetchEvents(ctx, url)
	if err != nil {
		if errors.Is(err, memento.ErrURLNotValidated) {
			s.logger.Warn("URL Memento не прошёл проверку",
				slog.String("url", url),
				slog.String("error", err.Error()),
			)
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	if s.cache != nil {
		s.cache.Add(url, events)
	}
	return events, nil
}

// Render возвращает HTML-фрагмент ленты в шаблоне attrs.Template.
func (s *MementoService) Render(ctx context.Context, attrs memento.Attributes) (string, error) {
	events, err := s.Events(ctx, attrs)
	if err != nil {
		return "", err
	}
	return memento.RenderString(attrs.Template, events)
}
