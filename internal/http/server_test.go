package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastewater/internal/amqp"
	"wastewater/internal/core"
	"wastewater/internal/log"
	"wastewater/internal/metrics"
	"wastewater/internal/storage"
)

type countingStore struct {
	ds    core.Dataset
	err   error
	loads atomic.Int32
	// gate, when set, blocks Load until closed
	gate chan struct{}
}

func (s *countingStore) Load(context.Context) (core.Dataset, error) {
	s.loads.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.ds, nil
}

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func record(t *testing.T, sample, date, point, value string) core.Record {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	return core.Record{
		SampleNumber:   sample,
		ExtractionDate: d,
		MeasuringPoint: point,
		Results: []core.Panel{{
			Name:      "SARS-CoV-2",
			Parameter: []core.Parameter{{Name: "N1", Result: core.TextReading(value), Unit: "gc/l"}},
		}},
	}
}

func testDataset(t *testing.T) core.Dataset {
	return core.Dataset{
		record(t, "S1", "01.02.2022", "ARA Werdhoelzli", "12,5"),
		record(t, "S2", "02.02.2022", "ARA Glarnerland", "3"),
		record(t, "S3", "03.02.2022", "ARA Werdhoelzli", "<0.5"),
		record(t, "S4", "04.02.2022", "ARA Werdhoelzli", "7.25"),
	}
}

func newTestServer(t *testing.T, store *countingStore) *Server {
	t.Helper()
	srv := NewServer(ServerConfig{
		Addr:           ":0",
		CacheTTL:       time.Minute,
		AllowedOrigins: []string{"*"},
		Static:         fstest.MapFS{"index.html": {Data: []byte("<h1>dashboard</h1>")}},
	}, store, metrics.NewHTTP(), testLogger())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthAndIndex(t *testing.T) {
	srv := newTestServer(t, &countingStore{})

	rr := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = get(t, srv, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dashboard")
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestStations(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	rr := get(t, srv, "/api/stations")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var stations []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stations))
	assert.Equal(t, []string{"ARA Glarnerland", "ARA Werdhoelzli"}, stations)
}

func TestRecords(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	rr := get(t, srv, "/api/records")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []core.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 4)
	assert.Equal(t, "01.02.2022", all[0].ExtractionDate.String())

	rr = get(t, srv, "/api/records?station=ARA%20Glarnerland")
	require.Equal(t, http.StatusOK, rr.Code)
	var filtered []core.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "S2", filtered[0].SampleNumber)
}

func TestSeries(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	rr := get(t, srv, "/api/stations/ARA%20Werdhoelzli/series?parameter=N1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Station   string `json:"station"`
		Parameter string `json:"parameter"`
		Points    []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ARA Werdhoelzli", resp.Station)
	require.Len(t, resp.Points, 2, "qualified values are not numeric")
	assert.Equal(t, "01.02.2022", resp.Points[0].Date)
	assert.Equal(t, "12.5", resp.Points[0].Value)
	assert.Equal(t, "7.25", resp.Points[1].Value)
}

func TestSeries_Errors(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	rr := get(t, srv, "/api/stations/ARA%20Werdhoelzli/series")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = get(t, srv, "/api/stations/unknown/series?parameter=N1")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	rr := get(t, srv, "/api/stations/ARA%20Werdhoelzli/summary?parameter=N1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ARA Werdhoelzli", resp.Station)
	assert.Equal(t, 2, resp.Summary.Count)
	assert.Equal(t, 7.25, resp.Summary.Min)
	assert.Equal(t, 12.5, resp.Summary.Max)
	assert.Equal(t, "2022-02-01", resp.Summary.First)
	assert.Equal(t, "2022-02-04", resp.Summary.Last)

	rr = get(t, srv, "/api/stations/ARA%20Werdhoelzli/summary")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStoreError(t *testing.T) {
	srv := newTestServer(t, &countingStore{err: errors.New("database is locked")})

	rr := get(t, srv, "/api/stations")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "locked")
}

func TestDatasetIsCachedAndInvalidated(t *testing.T) {
	store := &countingStore{ds: testDataset(t)}
	srv := newTestServer(t, store)

	get(t, srv, "/api/stations")
	get(t, srv, "/api/records")
	assert.Equal(t, int32(1), store.loads.Load())

	require.NoError(t, srv.HandleDatasetUpdated(context.Background(), &amqp.DatasetUpdatedMessage{RunID: "r1", Added: 1}))
	get(t, srv, "/api/stations")
	assert.Equal(t, int32(2), store.loads.Load())
}

func TestDatasetLoader_CollapsesConcurrentMisses(t *testing.T) {
	store := &countingStore{ds: testDataset(t), gate: make(chan struct{})}
	loader := newDatasetLoader(store, time.Minute)

	const readers = 8
	var wg sync.WaitGroup
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			ds, err := loader.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, ds, 4)
		}()
	}

	require.Eventually(t, func() bool { return store.loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), store.loads.Load())
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &countingStore{ds: testDataset(t)})
	get(t, srv, "/api/stations")

	rr := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wastewater_http_requests_total")
}

func TestMalformedStoreIsReadWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	srv := NewServer(ServerConfig{
		Addr:           ":0",
		CacheTTL:       time.Nanosecond,
		AllowedOrigins: []string{"*"},
	}, storage.NewFileStore(path), metrics.NewHTTP(), testLogger())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i := 0; i < 3; i++ {
		rr := get(t, srv, "/api/stations")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())
		time.Sleep(time.Millisecond)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}

func TestCacheCleanupRunsWhileServing(t *testing.T) {
	srv := newTestServer(t, &countingStore{})
	assert.False(t, srv.cacheManager.Running())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	require.Eventually(t, srv.cacheManager.Running, time.Second, time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.cacheManager.Running())
}
