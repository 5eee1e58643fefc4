package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firesafe_notify"

// Metrics stores Prometheus collectors used by the API, dispatcher and scheduler.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	dispatchTotal       *prometheus.CounterVec
	recipientsSentTotal *prometheus.CounterVec
	gatewaySendDuration *prometheus.HistogramVec
	dispatchInflight    *prometheus.GaugeVec
	credentialAuthTotal *prometheus.CounterVec
	authRetriesTotal    *prometheus.CounterVec
	schedulerItemsTotal *prometheus.CounterVec
	eventsConsumedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sms_dispatch_total",
				Help:      "Total number of dispatch attempts by category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		recipientsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sms_recipients_sent_total",
				Help:      "Total number of recipients the gateway accepted messages for.",
			},
			[]string{"category"},
		),
		gatewaySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sms_gateway_send_duration_seconds",
				Help:      "Gateway send duration in seconds grouped by category.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"category"},
		),
		dispatchInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sms_dispatch_inflight",
				Help:      "Current number of in-flight dispatches grouped by category.",
			},
			[]string{"category"},
		),
		credentialAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sms_gateway_auth_total",
				Help:      "Total number of gateway authentication calls by mode and result.",
			},
			[]string{"mode", "result"},
		),
		authRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sms_auth_retries_total",
				Help:      "Total number of sends retried after the gateway rejected the credential.",
			},
			[]string{"category"},
		),
		schedulerItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_items_total",
				Help:      "Total number of scheduled equipment alerts by scan and result.",
			},
			[]string{"scan", "result"},
		),
		eventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Total number of notification events consumed by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchTotal,
		m.recipientsSentTotal,
		m.gatewaySendDuration,
		m.dispatchInflight,
		m.credentialAuthTotal,
		m.authRetriesTotal,
		m.schedulerItemsTotal,
		m.eventsConsumedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDispatch(category string, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(normalizeLabel(category), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) AddRecipientsSent(category string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recipientsSentTotal.WithLabelValues(normalizeLabel(category)).Add(float64(count))
}

func (m *Metrics) ObserveGatewaySendDuration(category string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.gatewaySendDuration.WithLabelValues(normalizeLabel(category)).Observe(seconds)
}

func (m *Metrics) IncDispatchInFlight(category string) {
	if m == nil {
		return
	}
	m.dispatchInflight.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) DecDispatchInFlight(category string) {
	if m == nil {
		return
	}
	m.dispatchInflight.WithLabelValues(normalizeLabel(category)).Dec()
}

func (m *Metrics) IncCredentialAuth(mode string, result string) {
	if m == nil {
		return
	}
	m.credentialAuthTotal.WithLabelValues(normalizeLabel(mode), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncAuthRetry(category string) {
	if m == nil {
		return
	}
	m.authRetriesTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncSchedulerItem(scan string, result string) {
	if m == nil {
		return
	}
	m.schedulerItemsTotal.WithLabelValues(normalizeLabel(scan), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncEventConsumed(result string) {
	if m == nil {
		return
	}
	m.eventsConsumedTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
