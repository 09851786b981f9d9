package fhirexport

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts mapped documents and sink emissions. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	mappedTotal    prometheus.Counter
	emissionsTotal *prometheus.CounterVec
	emittedBytes   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mappedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ancexport",
			Subsystem: "fhir",
			Name:      "documents_mapped_total",
			Help:      "Total patient records mapped to FHIR Patient resources",
		}),
		emissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ancexport",
			Subsystem: "fhir",
			Name:      "emissions_total",
			Help:      "Total FHIR file emissions by sink and outcome",
		}, []string{"sink", "status"}),
		emittedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ancexport",
			Subsystem: "fhir",
			Name:      "emitted_bytes",
			Help:      "Size of emitted FHIR files in bytes",
			Buckets:   prometheus.ExponentialBuckets(512, 4, 8),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mappedTotal, m.emissionsTotal, m.emittedBytes)
	return m
}

func (m *Metrics) ObserveMapped(n int) {
	if m == nil {
		return
	}
	m.mappedTotal.Add(float64(n))
}

func (m *Metrics) ObserveEmission(sink string, err error, size int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.emissionsTotal.WithLabelValues(sink, status).Inc()
	if err == nil {
		m.emittedBytes.Observe(float64(size))
	}
}
