package pcap_indexer

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Verifier compares freshly built entries against a previously generated
// index, read in lock-step. Mismatches are logged, never fatal.
type Verifier struct {
	idx        *IndexReader
	log        logrus.FieldLogger
	mismatches uint64
	exhausted  bool
}

// NewVerifier skips the header-sized prefix of the verification stream and
// prepares it for comparison.
func NewVerifier(r io.Reader, log logrus.FieldLogger) (*Verifier, error) {
	if _, err := io.CopyN(io.Discard, r, CaptureHeaderSize); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "skip verify header")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Verifier{idx: NewIndexReader(r), log: log}, nil
}

// Observe compares the entry for packet pnum with the next verification
// entry. It reports whether the two matched; once the verification index
// runs out every call reports true.
func (v *Verifier) Observe(pnum uint64, e Entry) bool {
	if v.exhausted {
		return true
	}
	want, err := v.idx.ReadEntry()
	if err != nil {
		v.exhausted = true
		if err != io.EOF {
			v.log.WithError(err).Warnf("verify index ended inside entry %d", pnum)
		} else {
			v.log.Infof("verify index exhausted after %d entries", pnum)
		}
		return true
	}
	if e == want {
		return true
	}
	v.mismatches++
	v.log.WithFields(logrus.Fields{
		"packet": pnum,
	}).Errorf("[%d]ERROR: TimeStamp %x %x : Offset %016x %016x", pnum, e.Timestamp, want.Timestamp, e.Offset, want.Offset)
	return false
}

// Mismatches is the number of entries that disagreed so far.
func (v *Verifier) Mismatches() uint64 {
	return v.mismatches
}
