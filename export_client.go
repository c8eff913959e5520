package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/justtrackio/gosoline/pkg/appctx"
	"github.com/justtrackio/gosoline/pkg/cfg"
	"github.com/justtrackio/gosoline/pkg/exec"
	"github.com/justtrackio/gosoline/pkg/funk"
	"github.com/justtrackio/gosoline/pkg/log"
)

const listingUserAgent = "vera-counter/1.0"

// ErrUpstream marks a non-success response from the listing endpoint. The
// whole aggregation fails on it, there is no partial result.
var ErrUpstream = errors.New("upstream listing request failed")

type ExportSettings struct {
	Origin   string        `cfg:"origin" default:"https://export.verifieralliance.org"`
	Prefix   string        `cfg:"prefix" default:"v2/"`
	MaxPages int           `cfg:"max_pages" default:"250"`
	CacheTtl time.Duration `cfg:"cache_ttl" default:"5m"`
}

func ReadExportSettings(config cfg.Config) (*ExportSettings, error) {
	settings := &ExportSettings{}
	if err := config.UnmarshalKey("export", settings); err != nil {
		return nil, fmt.Errorf("could not unmarshal export settings: %w", err)
	}

	return settings, nil
}

type exportClientCtxKey struct{}

func ProvideExportClient(ctx context.Context, config cfg.Config, logger log.Logger) (*ExportClient, error) {
	return appctx.Provide(ctx, exportClientCtxKey{}, func() (*ExportClient, error) {
		var err error
		var settings *ExportSettings
		var backoffSettings exec.BackoffSettings

		if settings, err = ReadExportSettings(config); err != nil {
			return nil, err
		}

		if backoffSettings, err = exec.ReadBackoffSettings(config); err != nil {
			return nil, fmt.Errorf("could not read backoff settings: %w", err)
		}

		checks := []exec.ErrorChecker{
			exec.CheckConnectionError,
			func(_ any, err error) exec.ErrorType {
				// a page answered with a non-success status is not retried
				return exec.ErrorTypePermanent
			},
		}
		executor := exec.NewExecutor(logger, &exec.ExecutableResource{Type: "export", Name: "listing"}, &backoffSettings, checks)

		return NewExportClientWithInterfaces(logger, http.DefaultClient, executor, settings), nil
	})
}

func NewExportClientWithInterfaces(logger log.Logger, httpClient *http.Client, executor exec.Executor, settings *ExportSettings) *ExportClient {
	return &ExportClient{
		logger:     logger.WithChannel("export"),
		httpClient: httpClient,
		executor:   executor,
		settings:   settings,
	}
}

type ExportClient struct {
	logger     log.Logger
	httpClient *http.Client
	executor   exec.Executor
	settings   *ExportSettings
}

// FetchObjects walks the bucket listing under the given prefix until the
// server reports no further truncation, following either continuation-token
// or marker pagination. It returns the deduplicated objects sorted by key
// plus the ordered list of page URLs that were fetched.
func (c *ExportClient) FetchObjects(ctx context.Context, prefix string) ([]ListingObject, []string, error) {
	var marker, token string

	objects := make(map[string]ListingObject)
	pageUrls := make([]string, 0)
	seenCursors := make(map[string]struct{})

	for page := 0; page < c.settings.MaxPages; page++ {
		cursor := marker + "|" + token
		if _, seen := seenCursors[cursor]; seen {
			c.logger.Warn(ctx, "listing cursor repeated after %d pages, stopping pagination", page)
			break
		}
		seenCursors[cursor] = struct{}{}

		listingUrl := c.listingUrl(prefix, marker, token)
		pageUrls = append(pageUrls, listingUrl)

		body, err := c.fetchPage(ctx, listingUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("could not fetch listing page %d: %w", page+1, err)
		}

		parsed := ParseListingPage(body)

		// later pages win on duplicate keys
		for _, object := range parsed.Objects {
			objects[object.Key] = object
		}

		if !parsed.IsTruncated {
			break
		}

		if parsed.NextContinuationToken != "" {
			token = parsed.NextContinuationToken
			marker = ""

			continue
		}

		token = ""
		marker = parsed.NextMarker

		if marker == "" && len(parsed.Objects) > 0 {
			marker = parsed.Objects[len(parsed.Objects)-1].Key
		}

		if marker == "" {
			c.logger.Warn(ctx, "truncated listing page without a usable cursor, stopping pagination")
			break
		}
	}

	keys := funk.Keys(objects)
	sort.Strings(keys)

	result := make([]ListingObject, 0, len(keys))
	for _, key := range keys {
		result = append(result, objects[key])
	}

	return result, pageUrls, nil
}

// ListingUrl returns the URL of the first listing page for a prefix.
func (c *ExportClient) ListingUrl(prefix string) string {
	return c.listingUrl(prefix, "", "")
}

func (c *ExportClient) listingUrl(prefix string, marker string, token string) string {
	query := url.Values{}
	query.Set("prefix", prefix)

	if token != "" {
		query.Set("list-type", "2")
		query.Set("continuation-token", token)
	} else if marker != "" {
		query.Set("marker", marker)
	}

	return fmt.Sprintf("%s/?%s", c.settings.Origin, query.Encode())
}

func (c *ExportClient) fetchPage(ctx context.Context, listingUrl string) (string, error) {
	res, err := c.executor.Execute(ctx, func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingUrl, nil)
		if err != nil {
			return nil, fmt.Errorf("could not build listing request: %w", err)
		}
		req.Header.Set("User-Agent", listingUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d from %s", ErrUpstream, resp.StatusCode, listingUrl)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("could not read listing response: %w", err)
		}

		return string(body), nil
	})
	if err != nil {
		return "", err
	}

	return res.(string), nil
}
