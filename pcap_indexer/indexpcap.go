package pcap_indexer

import (
	"bufio"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Options configures IndexPCAP. The zero value indexes without
// verification, logs to the standard logrus logger and does not collect
// metrics.
type Options struct {
	// Verify, when set, is an existing index compared entry by entry.
	Verify io.Reader

	AllowUnknownMagic bool

	// ProgressInterval defaults to DefaultProgressInterval.
	ProgressInterval uint64

	Log     logrus.FieldLogger
	Clock   clock.Clock
	Metrics *Metrics
}

// Stats summarises a run. It is valid even when IndexPCAP returns an error.
type Stats struct {
	Packets       uint64
	Bytes         uint64
	Mismatches    uint64
	LastTimestamp uint64
	Elapsed       time.Duration
}

// IndexPCAP reads a capture from r and writes one 16 byte entry per packet
// to w. Scanning stops at the first fault; entries written before it are
// flushed and kept.
func IndexPCAP(r io.Reader, w io.Writer, opts Options) (stats Stats, err error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	progress := NewProgress(log, opts.Clock, opts.ProgressInterval)

	bw := bufio.NewWriterSize(w, 64*1024)
	defer func() {
		err = multierr.Append(err, errors.Wrap(bw.Flush(), "flush index"))
		stats.Elapsed = progress.Elapsed()
		if err != nil && opts.Metrics != nil {
			opts.Metrics.Faults.WithLabelValues(faultKind(err)).Inc()
		}
	}()

	pr, err := NewReader(r, ReaderOptions{AllowUnknownMagic: opts.AllowUnknownMagic})
	if err != nil {
		log.WithError(err).Error("Failed to read pcap header")
		return stats, err
	}
	switch pr.Scale() {
	case NanosecondScale:
		log.Info("PCAP Nano")
	case MicrosecondScale:
		log.Info("PCAP Micro")
	default:
		log.Warnf("PCAP unknown magic %x, sub-second timestamps dropped", pr.Header().Magic)
	}
	log.Debug(pr.String())
	stats.Bytes = pr.Offset()
	if opts.Metrics != nil {
		opts.Metrics.Bytes.Add(float64(stats.Bytes))
	}

	var verifier *Verifier
	if opts.Verify != nil {
		if verifier, err = NewVerifier(opts.Verify, log); err != nil {
			return stats, err
		}
	}

	ow := NewIndexWriter(bw)
	scale := pr.Scale()
	for {
		rec, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Error("scan aborted")
			return stats, err
		}
		e := rec.Entry(scale)
		if err := ow.WriteEntry(e); err != nil {
			return stats, errors.Wrap(err, "write index")
		}

		matched := true
		if verifier != nil {
			matched = verifier.Observe(stats.Packets, e)
			stats.Mismatches = verifier.Mismatches()
		}
		if opts.Metrics != nil {
			opts.Metrics.observe(rec, matched)
		}

		stats.Packets++
		stats.Bytes = pr.Offset()
		stats.LastTimestamp = e.Timestamp
		progress.Observe(stats.Packets, stats.Bytes, stats.LastTimestamp)
	}
	return stats, nil
}
