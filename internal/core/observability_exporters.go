package core

import (
	"context"
	"expvar"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation custody ledger counters via
// expvar: commits, rejections, and accumulated latency per entry point.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*operationTally
}

type operationTally struct {
	commits    int64
	rejections int64
	totalMS    float64
}

// OperationMetrics is the published aggregate for one ledger operation.
type OperationMetrics struct {
	Operation  string  `json:"operation"`
	Commits    int64   `json:"commits"`
	Rejections int64   `json:"rejections"`
	TotalMS    float64 `json:"total_ms"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name, generating one when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("freshchain_custody_ops_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]*operationTally),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns the aggregates sorted by operation name.
func (r *ExpvarMetricsRecorder) Snapshot() []OperationMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OperationMetrics, 0, len(r.ops))
	for op, tally := range r.ops {
		out = append(out, OperationMetrics{
			Operation:  op,
			Commits:    tally.commits,
			Rejections: tally.rejections,
			TotalMS:    tally.totalMS,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// Operation returns the aggregate for one operation, if any was recorded.
func (r *ExpvarMetricsRecorder) Operation(name string) (OperationMetrics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tally, ok := r.ops[name]
	if !ok {
		return OperationMetrics{}, false
	}
	return OperationMetrics{
		Operation:  name,
		Commits:    tally.commits,
		Rejections: tally.rejections,
		TotalMS:    tally.totalMS,
	}, true
}

// Observe records one operation result.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tally, ok := r.ops[operation]
	if !ok {
		tally = &operationTally{}
		r.ops[operation] = tally
	}
	if success {
		tally.commits++
	} else {
		tally.rejections++
	}
	tally.totalMS += float64(duration) / float64(time.Millisecond)
}

// MemoryAuditRecorder accumulates audit entries in memory. Used by tests and
// by deployments that scrape the trail through a snapshot call.
type MemoryAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditRecorder constructs an empty recorder.
func NewMemoryAuditRecorder() *MemoryAuditRecorder {
	return &MemoryAuditRecorder{}
}

// Record appends one audit entry.
func (r *MemoryAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Entries returns a copy of the recorded trail in arrival order.
func (r *MemoryAuditRecorder) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEntry(nil), r.entries...)
}

// PrometheusMetricsRecorder exports operation counters and latency
// histograms through a prometheus registerer.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the custody metrics on the supplied
// registerer. Passing nil uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshchain",
			Subsystem: "custody",
			Name:      "operations_total",
			Help:      "Count of custody ledger operations.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "freshchain",
			Subsystem: "custody",
			Name:      "operation_duration_seconds",
			Help:      "Duration of custody ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
}

// Observe records one operation result.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}
