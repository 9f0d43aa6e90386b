package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/livelist/livelist/pkg/producer"
	"github.com/livelist/livelist/server/internal/hub"
	"github.com/livelist/livelist/server/internal/store"
)

const namespace = "livelist"

// Collector returns the current metric families of one component.
type Collector func() []*dto.MetricFamily

// Registry gathers collectors and serves them over HTTP.
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds c to the registry.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// Gather returns every family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*dto.MetricFamily
	for _, c := range r.collectors {
		out = append(out, c()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// ServeHTTP writes the gathered families in the format negotiated from the
// Accept header (text by default).
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	format := expfmt.Negotiate(req.Header)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

// StoreCollector reports record count, version and commit outcomes.
func StoreCollector(st *store.Store) Collector {
	return func() []*dto.MetricFamily {
		snap := st.Snapshot()
		stats := st.Stats()
		return []*dto.MetricFamily{
			gauge("store_records", "Number of records currently stored.", float64(snap.Len())),
			gauge("store_version", "Version of the current snapshot.", float64(snap.Version())),
			counter("store_commits_total", "Committed mutation batches.", float64(stats.Commits)),
			counter("store_rejected_total", "Mutation batches rejected by validation.", float64(stats.Rejected)),
			counter("store_persist_failures_total", "Mutation batches aborted by a backend write failure.", float64(stats.PersistFailures)),
		}
	}
}

// HubCollector reports subscriber count and delivery outcomes.
func HubCollector(h *hub.Hub) Collector {
	return func() []*dto.MetricFamily {
		stats := h.Stats()
		events := counter("hub_events_total", "Change events by delivery outcome.", 0)
		events.Metric = []*dto.Metric{
			counterMetric(float64(stats.Delivered), "outcome", "delivered"),
			counterMetric(float64(stats.Failed), "outcome", "failed"),
			counterMetric(float64(stats.Suppressed), "outcome", "suppressed"),
			counterMetric(float64(stats.Coalesced), "outcome", "coalesced"),
			counterMetric(float64(stats.Dropped), "outcome", "dropped"),
		}
		return []*dto.MetricFamily{
			gauge("hub_subscribers", "Live subscriptions.", float64(h.Count())),
			events,
		}
	}
}

// ProducerCollector reports fixture producer runs.
func ProducerCollector(p *producer.Producer) Collector {
	return func() []*dto.MetricFamily {
		stats := p.Stats()
		return []*dto.MetricFamily{
			counter("producer_runs_total", "Fixture batches handed to the sink.", float64(stats.Runs)),
			counter("producer_failures_total", "Fixture batches the sink rejected.", float64(stats.Failures)),
			gauge("producer_interval_seconds", "Current producer interval.", p.Interval().Seconds()),
		}
	}
}

// --- helpers ----------------------------------------------------------------

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{counterMetric(v)},
	}
}

// counterMetric builds one counter sample; labels are name/value pairs.
func counterMetric(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
