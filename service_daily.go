package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/funk"
	"github.com/justtrackio/gosoline/pkg/log"
)

const dailyCountsHeader = "day,count"

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type DailyCountsSettings struct {
	Path string `cfg:"path" default:"data/verified_contracts_daily_counts.csv"`
}

func NewServiceDaily(ctx context.Context, config cfg.Config, logger log.Logger) (*ServiceDaily, error) {
	settings := &DailyCountsSettings{}
	if err := config.UnmarshalKey("daily_counts", settings); err != nil {
		return nil, fmt.Errorf("could not unmarshal daily counts settings: %w", err)
	}

	return NewServiceDailyWithInterfaces(logger, settings), nil
}

func NewServiceDailyWithInterfaces(logger log.Logger, settings *DailyCountsSettings) *ServiceDaily {
	return &ServiceDaily{
		logger:   logger.WithChannel("daily"),
		settings: settings,
	}
}

type ServiceDaily struct {
	logger   log.Logger
	settings *DailyCountsSettings
}

func (s *ServiceDaily) GetDailyCounts(ctx context.Context) (*DailyCounts, error) {
	raw, err := os.ReadFile(s.settings.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read daily counts file %s: %w", s.settings.Path, err)
	}

	series, err := ParseDailyCounts(string(raw))
	if err != nil {
		return nil, fmt.Errorf("could not parse daily counts file %s: %w", s.settings.Path, err)
	}

	return &DailyCounts{
		Series:  series,
		Summary: SummarizeDailyCounts(series),
	}, nil
}

// ParseDailyCounts parses the day,count CSV into a merged, chronologically
// sorted series. Duplicate days are summed, not overwritten; any malformed
// line is a fatal parse error naming the line. Empty input yields an empty
// series.
func ParseDailyCounts(raw string) ([]DailyPoint, error) {
	lines := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return []DailyPoint{}, nil
	}

	if !strings.EqualFold(lines[0], dailyCountsHeader) {
		return nil, fmt.Errorf("unexpected header %q, expected %q", lines[0], dailyCountsHeader)
	}

	merged := make(map[string]int64)
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid line %q: expected 2 fields, got %d", line, len(fields))
		}

		day := strings.TrimSpace(fields[0])
		if !dayPattern.MatchString(day) {
			return nil, fmt.Errorf("invalid line %q: day must match YYYY-MM-DD", line)
		}

		count, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid line %q: count must be a non-negative integer", line)
		}

		merged[day] += count
	}

	// lexicographic order is chronological order for zero-padded dates
	days := funk.Keys(merged)
	sort.Strings(days)

	series := make([]DailyPoint, 0, len(days))
	for _, day := range days {
		series = append(series, DailyPoint{Day: day, Count: merged[day]})
	}

	return series, nil
}

// SerializeDailyCounts renders a series back into the CSV format accepted by
// ParseDailyCounts.
func SerializeDailyCounts(series []DailyPoint) string {
	var sb strings.Builder

	sb.WriteString(dailyCountsHeader)
	sb.WriteString("\n")

	for _, point := range series {
		sb.WriteString(fmt.Sprintf("%s,%d\n", point.Day, point.Count))
	}

	return sb.String()
}

func SummarizeDailyCounts(series []DailyPoint) DailySummary {
	summary := DailySummary{
		Average7d:  trailingAverage(series, 7),
		Average30d: trailingAverage(series, 30),
	}

	for _, point := range series {
		summary.Total += point.Count
	}

	if len(series) > 0 {
		latest := series[len(series)-1]
		summary.LatestDay = &latest.Day
		summary.LatestCount = &latest.Count
	}

	return summary
}

// trailingAverage is the mean of the last n points rounded to two decimals,
// using however many points exist when the series is shorter than n.
func trailingAverage(series []DailyPoint, n int) float64 {
	if len(series) == 0 {
		return 0
	}

	if n > len(series) {
		n = len(series)
	}

	var sum int64
	for _, point := range series[len(series)-n:] {
		sum += point.Count
	}

	return math.Round(float64(sum)/float64(n)*100) / 100
}
