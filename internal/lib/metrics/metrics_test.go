package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNotificationsLabels(t *testing.T) {
	before := testutil.ToFloat64(Notifications.WithLabelValues(ChannelPush, ResultGone))
	Notifications.WithLabelValues(ChannelPush, ResultGone).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Notifications.WithLabelValues(ChannelPush, ResultGone)))
}

func TestServe_ExposesMetricsAndStops(t *testing.T) {
	addr := freeAddr(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, log) }()

	Ticks.Inc()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, string(body), "bill_reminder_scheduler_ticks_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestRouter_OnlyMetricsRoute(t *testing.T) {
	tests := []struct {
		path     string
		wantCode int
	}{
		{path: "/metrics", wantCode: http.StatusOK},
		{path: "/health", wantCode: http.StatusNotFound},
	}
	router := Router()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}
