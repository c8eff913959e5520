package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/justtrackio/gosoline/pkg/appctx"
	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/clock"
	"github.com/justtrackio/gosoline/pkg/log"
	"golang.org/x/sync/singleflight"
)

// exportTables is the closed set of dataset tables published under the
// export prefix. The order here is the order of the API output, and every
// table is reported even when no object matched it.
var exportTables = []string{
	"code",
	"compiled_contracts",
	"compiled_contracts_sources",
	"contract_deployments",
	"contracts",
	"sources",
	"verified_contracts",
}

// ListingFetcher abstracts the paginated listing crawl for the stats service.
type ListingFetcher interface {
	FetchObjects(ctx context.Context, prefix string) ([]ListingObject, []string, error)
}

type serviceStatsCtxKey struct{}

// ProvideServiceStats hands out the one shared stats service. Both the HTTP
// handlers and the warmup module go through it so they see the same cache.
func ProvideServiceStats(ctx context.Context, config cfg.Config, logger log.Logger) (*ServiceStats, error) {
	return appctx.Provide(ctx, serviceStatsCtxKey{}, func() (*ServiceStats, error) {
		var err error
		var client *ExportClient
		var settings *ExportSettings

		if client, err = ProvideExportClient(ctx, config, logger); err != nil {
			return nil, fmt.Errorf("could not create export client: %w", err)
		}

		if settings, err = ReadExportSettings(config); err != nil {
			return nil, err
		}

		return NewServiceStatsWithInterfaces(logger, client, settings, clock.Provider)
	})
}

func NewServiceStatsWithInterfaces(logger log.Logger, fetcher ListingFetcher, settings *ExportSettings, clk clock.Clock) (*ServiceStats, error) {
	origin, err := url.Parse(settings.Origin)
	if err != nil {
		return nil, fmt.Errorf("could not parse export origin %s: %w", settings.Origin, err)
	}

	return &ServiceStats{
		logger:   logger.WithChannel("stats"),
		fetcher:  fetcher,
		settings: settings,
		bucket:   origin.Host,
		clock:    clk,
	}, nil
}

type ServiceStats struct {
	logger   log.Logger
	fetcher  ListingFetcher
	settings *ExportSettings
	bucket   string
	clock    clock.Clock
	flight   singleflight.Group

	mutex    sync.Mutex
	cached   *ExportStats
	cachedAt time.Time
}

// GetStats returns the aggregated export statistics, re-crawling the bucket
// listing at most once per cache window. Concurrent cold-cache requests are
// collapsed into a single upstream crawl.
func (s *ServiceStats) GetStats(ctx context.Context) (*ExportStats, error) {
	s.mutex.Lock()
	if s.cached != nil && s.clock.Now().Sub(s.cachedAt) < s.settings.CacheTtl {
		cached := s.cached
		s.mutex.Unlock()

		return cached, nil
	}
	s.mutex.Unlock()

	result, err, _ := s.flight.Do("export-stats", func() (any, error) {
		return s.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*ExportStats), nil
}

// Refresh recomputes the statistics unconditionally and stores them as the
// cached payload.
func (s *ServiceStats) Refresh(ctx context.Context) (*ExportStats, error) {
	stats, err := s.buildStats(ctx)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	s.cached = stats
	s.cachedAt = s.clock.Now()
	s.mutex.Unlock()

	return stats, nil
}

func (s *ServiceStats) GetTableStats(ctx context.Context, table string) (*TableStats, error) {
	stats, err := s.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	for i := range stats.Tables {
		if stats.Tables[i].Table == table {
			return &stats.Tables[i], nil
		}
	}

	return nil, fmt.Errorf("unknown export table: %s", table)
}

func (s *ServiceStats) buildStats(ctx context.Context) (*ExportStats, error) {
	objects, pageUrls, err := s.fetcher.FetchObjects(ctx, s.settings.Prefix)
	if err != nil {
		return nil, fmt.Errorf("could not fetch export listing: %w", err)
	}

	totals := AggregateStats{}
	perTable := make(map[string]*AggregateStats, len(exportTables))
	for _, table := range exportTables {
		perTable[table] = &AggregateStats{}
	}

	for _, object := range objects {
		totals.Files++
		totals.SizeBytes += object.Size
		totals.LatestUpdate = maxDateTime(totals.LatestUpdate, object.LastModified)

		table, ok := s.classifyKey(object.Key)
		if !ok {
			continue
		}

		stats := perTable[table]
		stats.Files++
		stats.SizeBytes += object.Size
		stats.LatestUpdate = maxDateTime(stats.LatestUpdate, object.LastModified)
	}

	// byte sums convert to GiB once at the end, never incrementally
	totals.SizeGb = toGigabytes(totals.SizeBytes)

	tables := make([]TableStats, 0, len(exportTables))
	commands := make([]string, 0, len(exportTables))

	for _, table := range exportTables {
		stats := perTable[table]
		stats.SizeGb = toGigabytes(stats.SizeBytes)

		tables = append(tables, TableStats{
			Table:          table,
			Endpoint:       s.tableEndpoint(table),
			AggregateStats: *stats,
		})
		commands = append(commands, s.downloadCommand(table))
	}

	listingUrl := ""
	if len(pageUrls) > 0 {
		listingUrl = pageUrls[0]
	}

	s.logger.Info(ctx, "aggregated %d objects across %d listing pages", totals.Files, len(pageUrls))

	return &ExportStats{
		GeneratedAt: DateTime{Time: s.clock.Now()},
		Source: ExportSource{
			Origin:     s.settings.Origin,
			Prefix:     s.settings.Prefix,
			ListingUrl: listingUrl,
			Pages:      len(pageUrls),
			PageUrls:   pageUrls,
		},
		Totals:           totals,
		Tables:           tables,
		DownloadCommands: commands,
	}, nil
}

// classifyKey maps an object key to its export table. The first path segment
// under the dataset prefix has to equal the table name or start with
// "<name>." to cover sharded variants; anything else only counts towards the
// global totals.
func (s *ServiceStats) classifyKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.settings.Prefix)
	if !ok {
		return "", false
	}

	segment, _, _ := strings.Cut(rest, "/")

	for _, table := range exportTables {
		if segment == table || strings.HasPrefix(segment, table+".") {
			return table, true
		}
	}

	return "", false
}

func (s *ServiceStats) tableEndpoint(table string) string {
	return fmt.Sprintf("%s/%s%s/", s.settings.Origin, s.settings.Prefix, table)
}

func (s *ServiceStats) downloadCommand(table string) string {
	return fmt.Sprintf("aws s3 cp --no-sign-request --recursive s3://%s/%s%s/ ./%s/", s.bucket, s.settings.Prefix, table, table)
}

func toGigabytes(sizeBytes int64) float64 {
	return float64(sizeBytes) / float64(1<<30)
}
