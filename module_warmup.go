package main

import (
	"context"
	"fmt"
	"time"

	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/kernel"
	"github.com/justtrackio/gosoline/pkg/log"
	"github.com/marusama/semaphore/v2"
)

func NewModuleWarmup(ctx context.Context, config cfg.Config, logger log.Logger) (kernel.Module, error) {
	var err error
	var service *ServiceStats
	var settings *ExportSettings

	if service, err = ProvideServiceStats(ctx, config, logger); err != nil {
		return nil, fmt.Errorf("could not create stats service: %w", err)
	}

	if settings, err = ReadExportSettings(config); err != nil {
		return nil, err
	}

	return &ModuleWarmup{
		logger:   logger.WithChannel("warmup"),
		service:  service,
		interval: settings.CacheTtl,
		sem:      semaphore.New(1),
	}, nil
}

// ModuleWarmup keeps the export stats cache warm so API requests rarely pay
// for a full listing crawl. The semaphore guarantees that a slow crawl is
// never overlapped by the next tick.
type ModuleWarmup struct {
	logger   log.Logger
	service  *ServiceStats
	interval time.Duration
	sem      semaphore.Semaphore
}

func (m *ModuleWarmup) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	go m.warm(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			go m.warm(ctx)
		}
	}
}

func (m *ModuleWarmup) warm(ctx context.Context) {
	if !m.sem.TryAcquire(1) {
		m.logger.Info(ctx, "previous warmup still running, skipping tick")

		return
	}
	defer m.sem.Release(1)

	stats, err := m.service.Refresh(ctx)
	if err != nil {
		m.logger.Warn(ctx, "could not warm export stats cache: %s", err)

		return
	}

	m.logger.Info(ctx, "warmed export stats cache with %d files across %d pages", stats.Totals.Files, stats.Source.Pages)
}
