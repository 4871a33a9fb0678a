// Package metrics provides Prometheus metrics recording for internal packages.
// It sits below database, service and middleware so all of them can record.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultSlowQueryThreshold applies when a store is configured without one.
const DefaultSlowQueryThreshold = 100 * time.Millisecond

var storeLabels = []string{"store", "operation", "table"}

var (
	storeQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "priceuq_store_query_duration_seconds",
			Help:    "Latency of queries against the run, neighborhood, prediction and attribution stores",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		storeLabels,
	)

	storeQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceuq_store_query_errors_total",
			Help: "Store queries that returned an error",
		},
		storeLabels,
	)

	storeSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceuq_store_slow_queries_total",
			Help: "Store queries slower than the store's configured threshold",
		},
		storeLabels,
	)

	storeRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceuq_store_rows_written_total",
			Help: "Rows written by batch inserts, e.g. prediction records and attribution rows",
		},
		[]string{"store", "table"},
	)
)

// QueryObserver records query metrics for one store. Each query is
// labelled with its leading keyword and the table it targets.
type QueryObserver struct {
	store string
	slow  time.Duration
}

// NewQueryObserver returns an observer for store. A non-positive slow
// threshold falls back to DefaultSlowQueryThreshold.
func NewQueryObserver(store string, slow time.Duration) *QueryObserver {
	if slow <= 0 {
		slow = DefaultSlowQueryThreshold
	}
	return &QueryObserver{store: store, slow: slow}
}

// SlowThreshold returns the latency above which a query counts as slow.
func (o *QueryObserver) SlowThreshold() time.Duration {
	return o.slow
}

// Observe records one finished query and reports whether it was slow.
func (o *QueryObserver) Observe(sql string, duration time.Duration, err error) bool {
	op, table := ParseQuery(sql)
	storeQueryDuration.WithLabelValues(o.store, op, table).Observe(duration.Seconds())
	if err != nil {
		storeQueryErrors.WithLabelValues(o.store, op, table).Inc()
	}
	slow := duration > o.slow
	if slow {
		storeSlowQueries.WithLabelValues(o.store, op, table).Inc()
	}
	return slow
}

// RowsWritten adds n rows inserted by sql.
func (o *QueryObserver) RowsWritten(sql string, n int) {
	if n <= 0 {
		return
	}
	_, table := ParseQuery(sql)
	storeRowsWritten.WithLabelValues(o.store, table).Add(float64(n))
}

// ParseQuery returns the lower-cased leading keyword of sql and the first
// table it names after INTO, FROM, UPDATE or TABLE. Either part is
// "unknown" when it cannot be found.
func ParseQuery(sql string) (op, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown", "unknown"
	}
	op = strings.ToLower(fields[0])
	table = "unknown"
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToLower(fields[i]) {
		case "into", "from", "update", "table":
		default:
			continue
		}
		name := fields[i+1]
		if strings.EqualFold(name, "if") && i+4 < len(fields) {
			// CREATE TABLE IF NOT EXISTS name
			name = fields[i+4]
		}
		if t := tableName(name); t != "" {
			table = t
			break
		}
	}
	return op, table
}

func tableName(tok string) string {
	if i := strings.IndexByte(tok, '('); i >= 0 {
		tok = tok[:i]
	}
	tok = strings.Trim(tok, "\"`;,)")
	if i := strings.LastIndexByte(tok, '.'); i >= 0 {
		tok = tok[i+1:]
	}
	return strings.ToLower(tok)
}
