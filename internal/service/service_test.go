package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"track-rainfall/internal/alerting"
	"track-rainfall/internal/fetcher"
	"track-rainfall/internal/rainfall"
)

type fakeSource struct {
	readings  []rainfall.Reading
	truncated bool
	err       error
	gotStart  time.Time
	gotEnd    time.Time
	probed    bool
	available rainfall.Window
}

func (f *fakeSource) ResolveMeasure(ctx context.Context, stationID string) (string, error) {
	return stationID + "-rainfall", nil
}

func (f *fakeSource) FetchReadings(ctx context.Context, measureID string, start, end time.Time) (fetcher.Page, error) {
	f.gotStart, f.gotEnd = start, end
	if f.err != nil {
		return fetcher.Page{}, f.err
	}
	return fetcher.Page{Readings: f.readings, Truncated: f.truncated}, nil
}

func (f *fakeSource) AvailableRange(ctx context.Context, measureID string) (rainfall.Window, bool, error) {
	f.probed = true
	return f.available, !f.available.Start.IsZero(), nil
}

type mirrorCall struct {
	station string
	batch   rainfall.Series
}

type fakeMirror struct {
	calls []mirrorCall
	days  int64
	err   error
}

func (m *fakeMirror) EnsureSchema(ctx context.Context) error { return nil }

func (m *fakeMirror) ApplyBatch(ctx context.Context, stationID string, batch rainfall.Series) error {
	m.calls = append(m.calls, mirrorCall{station: stationID, batch: batch})
	return m.err
}

func (m *fakeMirror) ListBetween(ctx context.Context, stationID string, w rainfall.Window) (rainfall.Series, error) {
	return nil, nil
}

func (m *fakeMirror) CountDays(ctx context.Context, stationID string) (int64, error) {
	return m.days, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

func reading(t *testing.T, at string, mm string) rainfall.Reading {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, at)
	require.NoError(t, err)
	value := decimal.RequireFromString(mm)
	return rainfall.Reading{Timestamp: &ts, Value: &value}
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := rainfall.ParseDate(value)
	require.NoError(t, err)
	return d
}

func fixedNow(t *testing.T, value string) func() time.Time {
	d := date(t, value).Add(15 * time.Hour)
	return func() time.Time { return d }
}

func seedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rainfall.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestFetchAndUpdateLatestUpserts(t *testing.T) {
	path := seedFile(t, "date,rainfall_mm\n2024-01-01,2.0\n2024-01-02,0.0\n")
	src := &fakeSource{readings: []rainfall.Reading{
		reading(t, "2024-01-02T06:00:00Z", "4.0"),
		reading(t, "2024-01-02T18:00:00Z", "1.0"),
		reading(t, "2024-01-03T09:00:00Z", "1.0"),
	}}
	mirror := &fakeMirror{days: 2}
	notifier := &fakeNotifier{}
	updater := New(src, mirror, notifier, Options{Now: fixedNow(t, "2024-01-03")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeLatest,
		Days:       7,
	})
	require.NoError(t, err)

	assert.Equal(t, date(t, "2023-12-28"), src.gotStart)
	assert.Equal(t, date(t, "2024-01-03"), src.gotEnd)
	assert.Equal(t, "239374TP-rainfall", res.MeasureID)
	assert.Equal(t, 3, res.Readings)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.False(t, res.Truncated)
	assert.True(t, res.Written)
	assert.Equal(t, "date,rainfall_mm\n2024-01-01,2.0\n2024-01-02,5.0\n2024-01-03,1.0\n", readFile(t, path))

	require.Len(t, mirror.calls, 1)
	assert.Len(t, mirror.calls[0].batch, 2)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, 3, notifier.notes[0].SeriesRows)
	assert.Equal(t, "6", notifier.notes[0].WindowMM.String())
}

func TestFetchAndUpdateFetchErrorWritesNothing(t *testing.T) {
	original := "date,rainfall_mm\n2024-01-01,2.0\n"
	path := seedFile(t, original)
	src := &fakeSource{err: errors.New("connection reset")}
	mirror := &fakeMirror{}
	notifier := &fakeNotifier{}
	updater := New(src, mirror, notifier, Options{NotifyOnFailure: true, Now: fixedNow(t, "2024-01-03")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeLatest,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrFetch)
	assert.False(t, res.Written)
	assert.Equal(t, original, readFile(t, path))
	assert.Empty(t, mirror.calls)

	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].Failure, "connection reset")
}

func TestFetchAndUpdateHistoricalUpsertsWithinWindow(t *testing.T) {
	path := seedFile(t, "date,rainfall_mm\n2024-01-01,1.0\n2024-01-02,2.0\n2024-01-03,3.0\n2024-01-04,4.0\n")
	src := &fakeSource{readings: []rainfall.Reading{reading(t, "2024-01-03T12:00:00Z", "30")}}
	mirror := &fakeMirror{days: 4}
	updater := New(src, mirror, nil, Options{Now: fixedNow(t, "2024-02-01")}, zerolog.Nop())

	start, end := date(t, "2024-01-02"), date(t, "2024-01-03")
	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeHistorical,
		StartDate:  &start,
		EndDate:    &end,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "date,rainfall_mm\n2024-01-01,1.0\n2024-01-02,2.0\n2024-01-03,30.0\n2024-01-04,4.0\n", readFile(t, path))
	require.Len(t, mirror.calls, 1)
	assert.Len(t, mirror.calls[0].batch, 1)
}

func TestFetchAndUpdateHistoricalFullPageKeepsOlderDays(t *testing.T) {
	seed := "date,rainfall_mm\n"
	for d := 1; d <= 9; d++ {
		seed += fmt.Sprintf("2024-01-%02d,%d.0\n", d, d)
	}
	path := seedFile(t, seed)
	src := &fakeSource{
		readings: []rainfall.Reading{
			reading(t, "2024-01-10T23:45:00Z", "0.2"),
			reading(t, "2024-01-10T23:30:00Z", "0.2"),
			reading(t, "2024-01-10T23:15:00Z", "0.2"),
		},
		truncated: true,
	}
	updater := New(src, nil, nil, Options{Now: fixedNow(t, "2024-01-10")}, zerolog.Nop())

	start := date(t, "2024-01-01")
	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeHistorical,
		StartDate:  &start,
	})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, 1, res.Added)
	require.Len(t, res.Series, 10)
	assert.Equal(t, seed+"2024-01-10,0.6\n", readFile(t, path))
}

func TestFetchAndUpdateSeedsEmptyMirror(t *testing.T) {
	path := seedFile(t, "date,rainfall_mm\n2024-01-01,2.0\n2024-01-02,1.0\n")
	src := &fakeSource{readings: []rainfall.Reading{reading(t, "2024-01-03T09:00:00Z", "1.0")}}
	mirror := &fakeMirror{}
	updater := New(src, mirror, nil, Options{Now: fixedNow(t, "2024-01-03")}, zerolog.Nop())

	_, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeLatest,
	})
	require.NoError(t, err)

	require.Len(t, mirror.calls, 1)
	assert.Equal(t, "239374TP", mirror.calls[0].station)
	assert.Len(t, mirror.calls[0].batch, 3)
}

func TestFetchAndUpdateHistoricalDefaultLookback(t *testing.T) {
	src := &fakeSource{}
	updater := New(src, nil, nil, Options{LookbackDays: 30, Now: fixedNow(t, "2024-03-31")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "S1",
		OutputFile: filepath.Join(t.TempDir(), "out.csv"),
		Mode:       rainfall.ModeHistorical,
	})
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-03-01"), res.Window.Start)
	assert.Equal(t, date(t, "2024-03-31"), res.Window.End)
}

func TestFetchAndUpdateEmptyResultIsNoop(t *testing.T) {
	original := "date,rainfall_mm\n2024-01-01,2.0\n2024-01-05,1.0\n"
	path := seedFile(t, original)
	src := &fakeSource{available: rainfall.Window{Start: date(t, "2023-01-01"), End: date(t, "2023-12-31")}}
	mirror := &fakeMirror{}
	updater := New(src, mirror, nil, Options{Now: fixedNow(t, "2024-01-10")}, zerolog.Nop())

	start := date(t, "2024-01-01")
	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeHistorical,
		StartDate:  &start,
	})
	require.NoError(t, err)

	assert.True(t, src.probed)
	assert.Empty(t, res.Batch)
	assert.Equal(t, original, readFile(t, path))
	assert.Empty(t, mirror.calls)
}

func TestFetchAndUpdateFirstRunCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rainfall", "daily.csv")
	src := &fakeSource{readings: []rainfall.Reading{
		reading(t, "2024-01-01T08:00:00Z", "1.2"),
		reading(t, "2024-01-01T14:00:00Z", "0.8"),
		{Timestamp: reading(t, "2024-01-02T09:00:00Z", "0").Timestamp},
	}}
	updater := New(src, nil, nil, Options{Now: fixedNow(t, "2024-01-02")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "239374TP",
		OutputFile: path,
		Mode:       rainfall.ModeLatest,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, "date,rainfall_mm\n2024-01-01,2.0\n", readFile(t, path))
}

func TestFetchAndUpdateDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	src := &fakeSource{readings: []rainfall.Reading{reading(t, "2024-01-01T08:00:00Z", "1")}}
	mirror := &fakeMirror{}
	updater := New(src, mirror, nil, Options{Now: fixedNow(t, "2024-01-02")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{
		StationID:  "S1",
		OutputFile: path,
		Mode:       rainfall.ModeLatest,
		DryRun:     true,
	})
	require.NoError(t, err)

	assert.False(t, res.Written)
	assert.Len(t, res.Series, 1)
	assert.NoFileExists(t, path)
	assert.Empty(t, mirror.calls)
}

func TestFetchAndUpdateMirrorFailureIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	src := &fakeSource{readings: []rainfall.Reading{reading(t, "2024-01-01T08:00:00Z", "1")}}
	mirror := &fakeMirror{err: errors.New("db down")}
	updater := New(src, mirror, nil, Options{Now: fixedNow(t, "2024-01-02")}, zerolog.Nop())

	res, err := updater.FetchAndUpdate(context.Background(), Request{StationID: "S1", OutputFile: path, Mode: rainfall.ModeLatest})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.FileExists(t, path)
}

func TestFetchAndUpdateMalformedFileAborts(t *testing.T) {
	original := "when,how_much\n2024-01-01,2.0\n"
	path := seedFile(t, original)
	src := &fakeSource{readings: []rainfall.Reading{reading(t, "2024-01-01T08:00:00Z", "1")}}
	updater := New(src, nil, nil, Options{Now: fixedNow(t, "2024-01-02")}, zerolog.Nop())

	_, err := updater.FetchAndUpdate(context.Background(), Request{StationID: "S1", OutputFile: path, Mode: rainfall.ModeLatest})
	require.Error(t, err)
	assert.Equal(t, original, readFile(t, path))
}

func TestFetchAndUpdateInvalidWindow(t *testing.T) {
	updater := New(&fakeSource{}, nil, nil, Options{}, zerolog.Nop())

	_, err := updater.FetchAndUpdate(context.Background(), Request{StationID: "S1", OutputFile: "x.csv", Mode: "monthly"})
	assert.ErrorIs(t, err, rainfall.ErrInvalidWindow)
}
