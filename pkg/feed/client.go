// Package feed pulls fire detections from the NASA FIRMS area CSV API.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/metrics"
	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/redis"
)

const (
	// DefaultBaseURL is the FIRMS API root
	DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov"

	// DefaultSource is the VIIRS near-real-time product
	DefaultSource = "VIIRS_SNPP_NRT"

	// DefaultArea covers the whole globe
	DefaultArea = "world"

	// rateLimitKey identifies the shared map-key quota in Redis
	rateLimitKey = "firms"

	// FIRMS allows 5000 map-key transactions per 10 minute window
	rateLimit       = 5000
	rateLimitWindow = 10 * time.Minute
)

// Config holds the feed client configuration.
type Config struct {
	BaseURL  string
	MapKey   string
	Source   string
	Area     string
	DayRange int
	Timeout  time.Duration
}

// Client fetches raw detection rows from FIRMS. A nil limiter disables
// quota enforcement.
type Client struct {
	http    *http.Client
	limiter *redis.RateLimiter
	config  Config
	logger  ectologger.Logger
}

// NewClient creates a FIRMS feed client.
func NewClient(config Config, limiter *redis.RateLimiter, logger ectologger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Source == "" {
		config.Source = DefaultSource
	}
	if config.Area == "" {
		config.Area = DefaultArea
	}
	if config.DayRange <= 0 {
		config.DayRange = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		http:    &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Fetch pulls the configured area's detections for the given source and
// day range. Empty source or non-positive dayRange fall back to the
// client defaults.
func (c *Client) Fetch(ctx context.Context, source string, dayRange int) ([]models.RawFeedRow, error) {
	ctx, span := tracing.StartSpan(ctx, "feed.Client.Fetch")
	defer span.End()

	if source == "" {
		source = c.config.Source
	}
	if dayRange <= 0 {
		dayRange = c.config.DayRange
	}

	if c.limiter != nil {
		result, err := c.limiter.Allow(ctx, rateLimitKey, rateLimit, rateLimitWindow)
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Rate limit check failed, proceeding without it")
		} else if !result.Allowed {
			metrics.FeedFetchesTotal.WithLabelValues("throttled").Inc()
			return nil, httperror.NewHTTPErrorf(http.StatusTooManyRequests, "feed quota exhausted, retry in %s", result.RetryIn)
		}
	}

	url := fmt.Sprintf("%s/api/area/csv/%s/%s/%s/%d",
		c.config.BaseURL, c.config.MapKey, source, c.config.Area, dayRange)

	start := time.Now()
	rows, err := c.fetchCSV(ctx, url)
	metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.FeedFetchesTotal.WithLabelValues("success").Inc()
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"source":    source,
		"area":      c.config.Area,
		"day_range": dayRange,
		"rows":      len(rows),
	}).Info("Fetched detection feed")

	return rows, nil
}

func (c *Client) fetchCSV(ctx context.Context, url string) ([]models.RawFeedRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Feed request failed")
		return nil, httperror.NewHTTPErrorf(http.StatusBadGateway, "feed request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if c.limiter != nil && retryAfter > 0 {
			if err := c.limiter.BlockFor(ctx, rateLimitKey, retryAfter); err != nil {
				c.logger.WithContext(ctx).WithError(err).Warn("Failed to record feed backoff")
			}
		}
		return nil, httperror.NewHTTPErrorf(http.StatusTooManyRequests, "feed throttled upstream, retry after %s", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, httperror.NewHTTPErrorf(http.StatusBadGateway, "feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return ParseCSV(resp.Body)
}

// ParseCSV reads a FIRMS area CSV document into raw rows. Columns are
// resolved by header name so product variants with reordered or extra
// columns still parse. Short or ragged records are skipped, not fatal.
func ParseCSV(r io.Reader) ([]models.RawFeedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadGateway, "invalid feed document: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []models.RawFeedRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		rows = append(rows, models.RawFeedRow{
			Latitude:   field(record, "latitude"),
			Longitude:  field(record, "longitude"),
			AcqDate:    field(record, "acq_date"),
			AcqTime:    field(record, "acq_time"),
			Satellite:  field(record, "satellite"),
			Instrument: field(record, "instrument"),
			Version:    field(record, "version"),
			Confidence: field(record, "confidence"),
			DayNight:   field(record, "daynight"),
			BrightTI4:  field(record, "bright_ti4"),
			BrightTI5:  field(record, "bright_ti5"),
			FRP:        field(record, "frp"),
			Scan:       field(record, "scan"),
			Track:      field(record, "track"),
		})
	}

	return rows, nil
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
