package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justtrackio/gosoline/pkg/clock"
	logmocks "github.com/justtrackio/gosoline/pkg/log/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockListingFetcher struct {
	mock.Mock
}

func (m *mockListingFetcher) FetchObjects(ctx context.Context, prefix string) ([]ListingObject, []string, error) {
	args := m.Called(ctx, prefix)

	var objects []ListingObject
	if v := args.Get(0); v != nil {
		objects = v.([]ListingObject)
	}

	var pageUrls []string
	if v := args.Get(1); v != nil {
		pageUrls = v.([]string)
	}

	return objects, pageUrls, args.Error(2)
}

func TestServiceStatsSuite(t *testing.T) {
	suite.Run(t, new(ServiceStatsSuite))
}

type ServiceStatsSuite struct {
	suite.Suite
	fetcher *mockListingFetcher
	clock   clock.FakeClock
	service *ServiceStats
}

func (s *ServiceStatsSuite) SetupTest() {
	var err error

	s.fetcher = new(mockListingFetcher)
	s.clock = clock.NewFakeClock()

	settings := &ExportSettings{
		Origin:   "https://export.verifieralliance.org",
		Prefix:   "v2/",
		MaxPages: 250,
		CacheTtl: 5 * time.Minute,
	}

	logger := logmocks.NewLoggerMock(logmocks.WithMockAll)
	s.service, err = NewServiceStatsWithInterfaces(logger, s.fetcher, settings, s.clock)
	s.Require().NoError(err)
}

func (s *ServiceStatsSuite) TestGetStats() {
	ctx := context.Background()

	s.fetcher.On("FetchObjects", ctx, "v2/").Return([]ListingObject{
		{Key: "v2/code/part-0.parquet", Size: 1 << 30, LastModified: "2026-08-01T10:00:00Z"},
		{Key: "v2/sources/part-0.parquet", Size: 512, LastModified: "2026-08-03T10:00:00Z"},
		{Key: "v2/sources.2025/part-1.parquet", Size: 512, LastModified: "2026-08-02T10:00:00Z"},
		{Key: "v2/manifest.json", Size: 64, LastModified: "garbage-timestamp"},
	}, []string{"https://export.verifieralliance.org/?prefix=v2%2F"}, nil).Once()

	stats, err := s.service.GetStats(ctx)
	s.Require().NoError(err)

	s.Equal(int64(4), stats.Totals.Files)
	s.Equal(int64(1<<30+512+512+64), stats.Totals.SizeBytes)
	s.Require().NotNil(stats.Totals.LatestUpdate)
	s.Equal("2026-08-03T10:00:00Z", stats.Totals.LatestUpdate.Format(time.RFC3339))

	// the table list is closed and ordered, zero tables included
	s.Require().Len(stats.Tables, len(exportTables))
	for i, table := range exportTables {
		s.Equal(table, stats.Tables[i].Table)
	}

	byName := make(map[string]TableStats)
	for _, table := range stats.Tables {
		byName[table.Table] = table
	}

	s.Equal(int64(1), byName["code"].Files)
	s.InDelta(1.0, byName["code"].SizeGb, 0.0001)

	// dotted folder variants fold into their base table
	s.Equal(int64(2), byName["sources"].Files)
	s.Equal(int64(1024), byName["sources"].SizeBytes)

	// untouched tables are zero-filled, not omitted
	s.Equal(int64(0), byName["contracts"].Files)
	s.Equal(0.0, byName["contracts"].SizeGb)
	s.Nil(byName["contracts"].LatestUpdate)
	s.Equal("https://export.verifieralliance.org/v2/contracts/", byName["contracts"].Endpoint)

	s.Equal(1, stats.Source.Pages)
	s.Equal("https://export.verifieralliance.org/?prefix=v2%2F", stats.Source.ListingUrl)
	s.Contains(stats.DownloadCommands[0], "aws s3 cp --no-sign-request --recursive s3://export.verifieralliance.org/v2/code/")
}

func (s *ServiceStatsSuite) TestGetStatsUsesCacheWithinTtl() {
	ctx := context.Background()

	s.fetcher.On("FetchObjects", ctx, "v2/").Return([]ListingObject{}, []string{}, nil).Once()

	_, err := s.service.GetStats(ctx)
	s.Require().NoError(err)

	// second call inside the window is served from cache
	_, err = s.service.GetStats(ctx)
	s.Require().NoError(err)
	s.fetcher.AssertNumberOfCalls(s.T(), "FetchObjects", 1)

	// a fresh window triggers a new crawl
	s.clock.Advance(6 * time.Minute)
	s.fetcher.On("FetchObjects", ctx, "v2/").Return([]ListingObject{}, []string{}, nil).Once()

	_, err = s.service.GetStats(ctx)
	s.Require().NoError(err)
	s.fetcher.AssertNumberOfCalls(s.T(), "FetchObjects", 2)
}

func (s *ServiceStatsSuite) TestGetStatsFailsWithoutPartialResult() {
	ctx := context.Background()

	s.fetcher.On("FetchObjects", ctx, "v2/").Return(nil, nil, errors.New("status 503")).Once()

	stats, err := s.service.GetStats(ctx)
	s.Error(err)
	s.Nil(stats)

	// the failed run left no cache behind
	s.fetcher.On("FetchObjects", ctx, "v2/").Return([]ListingObject{}, []string{}, nil).Once()

	stats, err = s.service.GetStats(ctx)
	s.NoError(err)
	s.NotNil(stats)
}

func (s *ServiceStatsSuite) TestGetTableStats() {
	ctx := context.Background()

	s.fetcher.On("FetchObjects", ctx, "v2/").Return([]ListingObject{
		{Key: "v2/contracts/part-0.parquet", Size: 100, LastModified: "2026-08-01T10:00:00Z"},
	}, []string{}, nil).Once()

	table, err := s.service.GetTableStats(ctx, "contracts")
	s.Require().NoError(err)
	s.Equal(int64(1), table.Files)

	_, err = s.service.GetTableStats(ctx, "bogus")
	s.ErrorContains(err, "unknown export table")
}

func (s *ServiceStatsSuite) TestClassifyKey() {
	tests := []struct {
		key   string
		table string
		ok    bool
	}{
		{key: "v2/sources/part-0.parquet", table: "sources", ok: true},
		{key: "v2/sources.2024/part-0.parquet", table: "sources", ok: true},
		{key: "v2/sources_old/x", ok: false},
		{key: "v2/verified_contracts/day=2026-08-01/part-0.parquet", table: "verified_contracts", ok: true},
		{key: "v2/compiled_contracts_sources/part-0.parquet", table: "compiled_contracts_sources", ok: true},
		{key: "v2/compiled_contracts/part-0.parquet", table: "compiled_contracts", ok: true},
		{key: "v2/manifest.json", ok: false},
		{key: "v1/sources/part-0.parquet", ok: false},
		{key: "sources/part-0.parquet", ok: false},
	}

	for _, tt := range tests {
		table, ok := s.service.classifyKey(tt.key)
		s.Equal(tt.ok, ok, "key %s", tt.key)
		s.Equal(tt.table, table, "key %s", tt.key)
	}
}
