package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests by outcome.
type MetricsCollector struct {
	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	inFlight     atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests     int64 `json:"request_count"`
	Errors       int64 `json:"error_count"`
	ClientErrors int64 `json:"client_error_count"`
	ServerErrors int64 `json:"server_error_count"`
	InFlight     int64 `json:"in_flight"`
}

func (mc *MetricsCollector) Snapshot() Snapshot {
	c, s := mc.clientErrors.Load(), mc.serverErrors.Load()
	return Snapshot{
		Requests:     mc.requests.Load(),
		Errors:       c + s,
		ClientErrors: c,
		ServerErrors: s,
		InFlight:     mc.inFlight.Load(),
	}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)
		mc.inFlight.Add(1)
		defer mc.inFlight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode >= 500:
			mc.serverErrors.Add(1)
		case rw.statusCode >= 400:
			mc.clientErrors.Add(1)
		}
	})
}
