package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDataNoContentBeforeFirstReading(t *testing.T) {
	s := New(Config{})
	rec := get(t, s.Handler(), "/data")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Body.String())
}

func TestDataJSONShape(t *testing.T) {
	s := New(Config{})
	s.SetLatest(Reading{
		Sequence:    7,
		Temperature: 22.5,
		Latitude:    -23.5,
		Longitude:   -46.25,
		ReceivedAt:  testTime,
		Alarm:       "none",
	})

	rec := get(t, s.Handler(), "/data")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]any{
		"sequence":    7.0,
		"temperature": 22.5,
		"latitude":    -23.5,
		"longitude":   -46.25,
		"received_at": "2026-03-01T12:30:00Z",
		"alarm":       "none",
	}, body)
}

func TestReadings(t *testing.T) {
	var gotLimit int
	history := func(limit int) ([]Reading, error) {
		gotLimit = limit
		out := make([]Reading, 0, 2)
		for i := 2; i >= 1; i-- {
			out = append(out, Reading{Sequence: uint32(i), ReceivedAt: testTime})
		}
		return out, nil
	}
	s := New(Config{History: history})

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, DefaultHistoryLimit},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=999999", http.StatusOK, MaxHistoryLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			gotLimit = 0
			rec := get(t, s.Handler(), "/readings"+tt.query)
			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, tt.wantLimit, gotLimit)
			if tt.wantCode != http.StatusOK {
				return
			}
			var readings []Reading
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
			require.Len(t, readings, 2)
			require.Equal(t, uint32(2), readings[0].Sequence)
		})
	}
}

func TestReadingsEmptyAndFailing(t *testing.T) {
	s := New(Config{History: func(int) ([]Reading, error) { return nil, nil }})
	rec := get(t, s.Handler(), "/readings")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	s = New(Config{History: func(int) ([]Reading, error) { return nil, errors.New("disk gone") }})
	rec = get(t, s.Handler(), "/readings")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadingsDisabledWithoutHistory(t *testing.T) {
	s := New(Config{})
	rec := get(t, s.Handler(), "/readings")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	alive := false
	s := New(Config{Alive: func() bool { return alive }})

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"alive":false,"last_accepted":null}`, rec.Body.String())

	s.SetLatest(Reading{ReceivedAt: testTime})
	alive = true
	rec = get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"alive":true,"last_accepted":"2026-03-01T12:30:00Z"}`, rec.Body.String())
}

func TestHealthDefaultsToHasData(t *testing.T) {
	s := New(Config{})
	require.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/healthz").Code)
	s.SetLatest(Reading{ReceivedAt: testTime})
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "coldremote_frames_received_total 3\n")
	})
	s := New(Config{Metrics: metrics})
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "frames_received_total 3")
}

func TestMethodsAndPreflight(t *testing.T) {
	s := New(Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/data", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/data", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{Listener: ln})
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	require.NotZero(t, s.Port())

	s.SetLatest(Reading{Sequence: 1, ReceivedAt: testTime})
	resp, err := http.Get(fmt.Sprintf("http://%s/data", s.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.ErrorIs(t, s.Stop(ctx), ErrNotStarted)
}
