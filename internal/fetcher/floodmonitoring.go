package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"track-rainfall/internal/rainfall"
)

const (
	defaultBaseURL   = "https://environment.data.gov.uk/flood-monitoring"
	defaultParameter = "rainfall"
	defaultPageLimit = 10000
	rangeProbeLimit  = 5000
)

// FloodMonitoringOptions parameterise the Environment Agency client.
type FloodMonitoringOptions struct {
	BaseURL   string
	Parameter string
	PageLimit int
	Timeout   time.Duration
	UserAgent string
}

// FloodMonitoring reads rainfall measures from the Environment Agency
// flood-monitoring API.
type FloodMonitoring struct {
	opts    FloodMonitoringOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// Station is a monitoring point returned by a proximity search.
type Station struct {
	Reference string
	Label     string
	Latitude  float64
	Longitude float64
}

// NewFloodMonitoring constructs a flood-monitoring client.
func NewFloodMonitoring(opts FloodMonitoringOptions, logger zerolog.Logger) *FloodMonitoring {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Parameter == "" {
		opts.Parameter = defaultParameter
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &FloodMonitoring{
		opts:    opts,
		logger:  logger.With().Str("component", "flood_monitoring").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// ResolveMeasure returns the first rainfall measure exposed by the station.
func (f *FloodMonitoring) ResolveMeasure(ctx context.Context, stationID string) (string, error) {
	query := url.Values{}
	query.Set("parameter", f.opts.Parameter)
	query.Set("_limit", strconv.Itoa(f.opts.PageLimit))

	var res listResponse[measureItem]
	if err := f.getJSON(ctx, "/id/stations/"+url.PathEscape(stationID)+"/measures", query, &res); err != nil {
		return "", err
	}

	ids := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Parameter != "" && !strings.EqualFold(item.Parameter, f.opts.Parameter) {
			continue
		}
		if id := item.id(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoRainfallMeasure, stationID)
	}
	if len(ids) > 1 {
		f.logger.Warn().Str("station", stationID).Strs("measures", ids).Msg("station exposes several rainfall measures; using the first")
	}
	return ids[0], nil
}

// FetchReadings lists readings of a measure between start and end dates
// inclusive. The API returns newest first, so a full page means the oldest
// part of the range was cut off.
func (f *FloodMonitoring) FetchReadings(ctx context.Context, measureID string, start, end time.Time) (Page, error) {
	query := url.Values{}
	query.Set("startdate", start.Format(rainfall.DateLayout))
	query.Set("enddate", end.Format(rainfall.DateLayout))
	query.Set("_limit", strconv.Itoa(f.opts.PageLimit))
	query.Set("_sorted", "")

	var res listResponse[readingItem]
	if err := f.getJSON(ctx, readingsPath(measureID), query, &res); err != nil {
		return Page{}, err
	}

	page := Page{
		Readings:  make([]rainfall.Reading, 0, len(res.Items)),
		Truncated: len(res.Items) >= f.opts.PageLimit,
	}
	for _, item := range res.Items {
		page.Readings = append(page.Readings, item.reading())
	}
	if page.Truncated {
		f.logger.Warn().Str("measure", measureID).Int("limit", f.opts.PageLimit).Msg("readings page is full; older readings in the range were not returned")
	}
	f.logger.Debug().Str("measure", measureID).Int("readings", len(page.Readings)).Msg("fetched readings")
	return page, nil
}

// AvailableRange reports the first and last dates covered by the newest
// page of readings. ok is false when the measure has no readings.
func (f *FloodMonitoring) AvailableRange(ctx context.Context, measureID string) (rainfall.Window, bool, error) {
	query := url.Values{}
	query.Set("_limit", strconv.Itoa(rangeProbeLimit))
	query.Set("_sorted", "")

	var res listResponse[readingItem]
	if err := f.getJSON(ctx, readingsPath(measureID), query, &res); err != nil {
		return rainfall.Window{}, false, err
	}

	var (
		earliest time.Time
		latest   time.Time
	)
	for _, item := range res.Items {
		r := item.reading()
		if r.Timestamp == nil {
			continue
		}
		if earliest.IsZero() || r.Timestamp.Before(earliest) {
			earliest = *r.Timestamp
		}
		if latest.IsZero() || r.Timestamp.After(latest) {
			latest = *r.Timestamp
		}
	}
	if earliest.IsZero() {
		return rainfall.Window{}, false, nil
	}
	return rainfall.Window{Start: rainfall.Day(earliest), End: rainfall.Day(latest)}, true, nil
}

// FindStations lists rainfall stations within distKM of the given point.
func (f *FloodMonitoring) FindStations(ctx context.Context, lat, long, distKM float64) ([]Station, error) {
	query := url.Values{}
	query.Set("parameter", f.opts.Parameter)
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("long", strconv.FormatFloat(long, 'f', -1, 64))
	query.Set("dist", strconv.FormatFloat(distKM, 'f', -1, 64))

	var res listResponse[stationItem]
	if err := f.getJSON(ctx, "/id/stations", query, &res); err != nil {
		return nil, err
	}

	stations := make([]Station, 0, len(res.Items))
	for _, item := range res.Items {
		ref := item.StationReference
		if ref == "" {
			ref = item.Notation
		}
		stations = append(stations, Station{
			Reference: ref,
			Label:     firstString(item.Label),
			Latitude:  firstFloat(item.Lat),
			Longitude: firstFloat(item.Long),
		})
	}
	return stations, nil
}

func (f *FloodMonitoring) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := f.baseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	f.logger.Debug().Str("url", target).Msg("upstream request")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readingsPath(measureID string) string {
	return "/id/measures/" + url.PathEscape(path.Base(measureID)) + "/readings"
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type measureItem struct {
	ID        string `json:"@id"`
	Notation  string `json:"notation"`
	Parameter string `json:"parameter"`
}

func (m measureItem) id() string {
	if m.Notation != "" {
		return m.Notation
	}
	if m.ID == "" {
		return ""
	}
	return path.Base(m.ID)
}

type readingItem struct {
	DateTime string          `json:"dateTime"`
	Value    json.RawMessage `json:"value"`
}

func (r readingItem) reading() rainfall.Reading {
	var out rainfall.Reading
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(r.DateTime)); err == nil {
		out.Timestamp = &ts
	}
	out.Value = parseValue(r.Value)
	return out
}

type stationItem struct {
	Notation         string          `json:"notation"`
	StationReference string          `json:"stationReference"`
	Label            json.RawMessage `json:"label"`
	Lat              json.RawMessage `json:"lat"`
	Long             json.RawMessage `json:"long"`
}

// parseValue casts a reading value leniently: numbers and numeric strings
// decode, anything else (null, arrays, text) is treated as missing.
func parseValue(raw json.RawMessage) *decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	return &value
}

// The station list occasionally returns arrays where scalars are expected.
func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func firstFloat(raw json.RawMessage) float64 {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	var many []float64
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return 0
}

var _ Source = (*FloodMonitoring)(nil)
