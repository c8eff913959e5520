package main

import (
	"context"
	"fmt"

	"github.com/gosoline-project/httpserver"
	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/log"
)

type TableSelectInput struct {
	Table string `form:"table"`
}

type ListTablesResponse struct {
	Tables []TableStats `json:"tables"`
}

func NewHandlerStats(ctx context.Context, config cfg.Config, logger log.Logger) (*HandlerStats, error) {
	var err error
	var service *ServiceStats

	if service, err = ProvideServiceStats(ctx, config, logger); err != nil {
		return nil, fmt.Errorf("could not create stats service: %w", err)
	}

	return &HandlerStats{
		service: service,
	}, nil
}

type HandlerStats struct {
	service *ServiceStats
}

func (h *HandlerStats) GetStats(ctx context.Context) (httpserver.Response, error) {
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get export stats: %w", err)
	}

	return httpserver.NewJsonResponse(stats), nil
}

func (h *HandlerStats) ListTables(ctx context.Context) (httpserver.Response, error) {
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get export stats: %w", err)
	}

	return httpserver.NewJsonResponse(ListTablesResponse{
		Tables: stats.Tables,
	}), nil
}

func (h *HandlerStats) GetTable(ctx context.Context, input *TableSelectInput) (httpserver.Response, error) {
	table, err := h.service.GetTableStats(ctx, input.Table)
	if err != nil {
		return nil, fmt.Errorf("could not get table stats: %w", err)
	}

	return httpserver.NewJsonResponse(table), nil
}
