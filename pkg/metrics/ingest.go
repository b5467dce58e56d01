package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics tracks Shopify ingestion volume per entity type.
type IngestMetrics struct {
	pages   *prometheus.CounterVec
	records *prometheus.CounterVec
	retries *prometheus.CounterVec
}

// NewIngestMetrics registers ingestion counters on the provided registerer.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	if reg == nil {
		return &IngestMetrics{}
	}
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pages_total",
		Help: "Shopify pages fetched and persisted.",
	}, []string{"entity"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "Shopify records upserted.",
	}, []string{"entity"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Retried Shopify calls after a retryable transport failure.",
	}, []string{"entity"})
	reg.MustRegister(pages, records, retries)
	return &IngestMetrics{pages: pages, records: records, retries: retries}
}

// IncPages adds to the fetched-page counter for the entity.
func (m *IngestMetrics) IncPages(entity string) {
	if m == nil || m.pages == nil {
		return
	}
	m.pages.WithLabelValues(normalizeLabel(entity)).Inc()
}

// AddRecords adds to the upserted-record counter for the entity.
func (m *IngestMetrics) AddRecords(entity string, n int) {
	if m == nil || m.records == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(normalizeLabel(entity)).Add(float64(n))
}

// IncRetries adds to the retry counter for the entity.
func (m *IngestMetrics) IncRetries(entity string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(entity)).Inc()
}
