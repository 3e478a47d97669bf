package pcap_indexer

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pcap_index"

// Metrics counts indexing activity. Register it with a registry and export
// with prometheus.WriteToTextfile at the end of a run.
type Metrics struct {
	Packets    prometheus.Counter
	Bytes      prometheus.Counter
	Mismatches prometheus.Counter
	Faults     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_total",
			Help:      "Packets written to the index.",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "capture_bytes_total",
			Help:      "Capture bytes consumed, including the file header.",
		}),
		Mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verify_mismatches_total",
			Help:      "Entries that disagreed with the verification index.",
		}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "faults_total",
			Help:      "Fatal parse faults by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Packets, m.Bytes, m.Mismatches, m.Faults)
	}
	return m
}

func (m *Metrics) observe(rec Record, matched bool) {
	m.Packets.Inc()
	m.Bytes.Add(float64(RecordHeaderSize + rec.CaptureLength))
	if !matched {
		m.Mismatches.Inc()
	}
}

// faultKind names the sentinel behind err for the faults_total label.
func faultKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrTruncatedRecord):
		return "truncated_record"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrShortPayload):
		return "short_payload"
	}
	return "io"
}
