// lab_sync.go — синхронизация всех лабораторий под суффиксом DN.
//
// LabSyncService по запросу (SyncAll) или периодически (Start, при
// WS_LAB_SYNC_INTERVAL > 0) обходит лаборатории из хранилища и обновляет
// каждую по каталогу. Ошибка одной лаборатории не прерывает обход.
//
// Prometheus-метрики:
//   - epflws_lab_sync_duration_seconds — длительность полного обхода
//   - epflws_lab_sync_labs_total — обработанные лаборатории (по результату)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/repository"
)

// Prometheus-метрики синхронизации лабораторий.
var (
	labSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "epflws_lab_sync_duration_seconds",
		Help:    "Длительность синхронизации лабораторий с каталогом",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s … ~204s
	})

	labSyncLabsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epflws_lab_sync_labs_total",
		Help: "Количество лабораторий, обработанных при синхронизации",
	}, []string{"result"}) // result: synced, not_found, unicity, failed
)

// LabSyncService — синхронизация лабораторий по суффиксу DN.
type LabSyncService struct {
	labs          *LabService
	syncStateRepo repository.SyncStateRepository
	dnSuffix      string
	interval      time.Duration
	logger        *slog.Logger

	// Один обход за раз: периодический и ручной запуски не пересекаются
	mu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLabSyncService создаёт сервис синхронизации лабораторий.
func NewLabSyncService(
	labs *LabService,
	syncStateRepo repository.SyncStateRepository,
	dnSuffix string,
	interval time.Duration,
	logger *slog.Logger,
) *LabSyncService {
	return &LabSyncService{
		labs:          labs,
		syncStateRepo: syncStateRepo,
		dnSuffix:      dnSuffix,
		interval:      interval,
		logger:        logger.With(slog.String("component", "lab_sync")),
	}
}

// DNSuffix возвращает суффикс DN по умолчанию.
func (s *LabSyncService) DNSuffix() string {
	return s.dnSuffix
}

// Start запускает фоновую горутину с периодической синхронизацией.
// При нулевом интервале ничего не делает.
func (s *LabSyncService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Периодическая синхронизация лабораторий отключена")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация лабораторий запущена",
			slog.String("interval", s.interval.String()),
			slog.String("dn_suffix", s.dnSuffix),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация лабораторий остановлена")
				return
			case <-ticker.C:
				if _, err := s.SyncAll(ctx, ""); err != nil {
					s.logger.Error("Ошибка периодической синхронизации", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *LabSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncAll синхронизирует все лаборатории, DN которых содержит ","+dnSuffix.
// Пустой dnSuffix — суффикс из конфигурации. Лаборатории обрабатываются
// последовательно, каждая — со свежим дескриптором.
func (s *LabSyncService) SyncAll(ctx context.Context, dnSuffix string) (*model.LabSyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dnSuffix == "" {
		dnSuffix = s.dnSuffix
	}

	result := &model.LabSyncResult{DNSuffix: dnSuffix, StartedAt: time.Now().UTC()}
	timer := prometheus.NewTimer(labSyncDuration)
	defer timer.ObserveDuration()

	labs, err := s.labs.FindAllByDNSuffix(ctx, dnSuffix)
	if err != nil {
		return nil, fmt.Errorf("получение списка лабораторий: %w", err)
	}
	result.Total = len(labs)

	for _, lab := range labs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.labs.Sync(ctx, lab)
		switch {
		case err == nil:
			result.Synced++
			labSyncLabsTotal.WithLabelValues("synced").Inc()
			continue
		case errors.Is(err, ErrLabNotFound):
			result.NotFound++
			labSyncLabsTotal.WithLabelValues("not_found").Inc()
		case errors.Is(err, ErrLabUnicity):
			result.Unicity++
			labSyncLabsTotal.WithLabelValues("unicity").Inc()
		default:
			result.Failed++
			labSyncLabsTotal.WithLabelValues("failed").Inc()
		}
		s.logger.Warn("Ошибка синхронизации лаборатории",
			slog.String("id", lab.ID),
			slog.String("unique_id", lab.UniqueID),
			slog.String("abbrev", lab.Abbrev),
			slog.String("error", err.Error()),
		)
	}

	result.CompletedAt = time.Now().UTC()
	if err := s.syncStateRepo.UpdateLabSyncAt(ctx, result.CompletedAt); err != nil {
		s.logger.Warn("Ошибка обновления last_lab_sync_at", slog.String("error", err.Error()))
	}

	s.logger.Info("Синхронизация лабораторий завершена",
		slog.String("dn_suffix", dnSuffix),
		slog.Int("total", result.Total),
		slog.Int("synced", result.Synced),
		slog.Int("not_found", result.NotFound),
		slog.Int("unicity", result.Unicity),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// LastSyncAt возвращает время последней полной синхронизации или nil.
func (s *LabSyncService) LastSyncAt(ctx context.Context) (*time.Time, error) {
	state, err := s.syncStateRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	return state.LastLabSyncAt, nil
}
