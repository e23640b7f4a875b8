package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/negroni"
)

var routeLabels = []string{"route", "method", "status"}

type routeMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newRouteMetrics(registerer prometheus.Registerer) *routeMetrics {
	m := &routeMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "views_http_requests_total",
			Help: "Total http requests by route and status",
		}, routeLabels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "views_http_request_duration_seconds",
			Help:    "Latency of the http requests by route and status",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, routeLabels),
	}

	registerer.MustRegister(m.requests, m.latency)
	return m
}

// instrument records the status and latency of every request served by next
// under the given route name.
func (m *routeMetrics) instrument(route string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		begin := time.Now()
		rw := negroni.NewResponseWriter(w)

		next(rw, r, ps)

		labels := prometheus.Labels{
			"route":  route,
			"method": r.Method,
			"status": strconv.Itoa(rw.Status()),
		}
		m.requests.With(labels).Inc()
		m.latency.With(labels).Observe(time.Since(begin).Seconds())
	}
}
