package overpass

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptide/collector/internal/geo"
)

func TestFetchTile_NoBackoffSleepAfterFinalAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	var backoffs []time.Duration
	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL
	c.requestDelay = 0
	c.initialBackoff = time.Second
	c.sleep = func(d time.Duration) {
		if d > 0 {
			backoffs = append(backoffs, d)
		}
	}

	box := geo.BoundingBox{North: 41.65, South: 41.6, East: 44.75, West: 44.7}
	_, err := c.FetchTile(context.Background(), box)
	require.Error(t, err)

	// Five attempts mean four waits between them; the give-up path must
	// not pay a fifth, doubled backoff.
	require.Len(t, backoffs, c.maxAttempts-1)
	assert.Equal(t, time.Second, backoffs[0])
	assert.Equal(t, 8*time.Second, backoffs[len(backoffs)-1])
}
