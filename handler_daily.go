package main

import (
	"context"
	"fmt"

	"github.com/gosoline-project/httpserver"
	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/log"
	"github.com/spf13/cast"
)

type DailySelectInput struct {
	Limit string `form:"limit"`
}

func NewHandlerDaily(ctx context.Context, config cfg.Config, logger log.Logger) (*HandlerDaily, error) {
	var err error
	var service *ServiceDaily

	if service, err = NewServiceDaily(ctx, config, logger); err != nil {
		return nil, fmt.Errorf("could not create daily counts service: %w", err)
	}

	return &HandlerDaily{
		service: service,
	}, nil
}

type HandlerDaily struct {
	service *ServiceDaily
}

func (h *HandlerDaily) GetDaily(ctx context.Context, input *DailySelectInput) (httpserver.Response, error) {
	counts, err := h.service.GetDailyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get daily counts: %w", err)
	}

	// the summary always covers the full series, the limit only trims the
	// returned tail
	limit := cast.ToInt(input.Limit)
	if limit > 0 && limit < len(counts.Series) {
		counts.Series = counts.Series[len(counts.Series)-limit:]
	}

	return httpserver.NewJsonResponse(counts), nil
}

func (h *HandlerDaily) GetSummary(ctx context.Context) (httpserver.Response, error) {
	counts, err := h.service.GetDailyCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get daily counts: %w", err)
	}

	return httpserver.NewJsonResponse(counts.Summary), nil
}
