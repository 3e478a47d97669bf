package pcap_indexer

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// DefaultProgressInterval is the number of packets between progress lines.
const DefaultProgressInterval = 100000

// Progress logs throughput every interval packets.
type Progress struct {
	log      logrus.FieldLogger
	clock    clock.Clock
	start    time.Time
	interval uint64
}

func NewProgress(log logrus.FieldLogger, clk clock.Clock, interval uint64) *Progress {
	if clk == nil {
		clk = clock.New()
	}
	if interval == 0 {
		interval = DefaultProgressInterval
	}
	return &Progress{log: log, clock: clk, start: clk.Now(), interval: interval}
}

// Observe is called after count packets have been indexed; offset is the
// number of capture bytes consumed so far.
func (p *Progress) Observe(count, offset, lastTimestamp uint64) {
	if count%p.interval != 0 {
		return
	}
	dT := p.Elapsed().Seconds()
	bps := 0.0
	if dT > 0 {
		bps = float64(offset) * 8.0 / dT
	}
	date := time.Unix(0, int64(lastTimestamp)).UTC().Format("2006-01-02 15:04:05")
	p.log.Infof("[%.3f H][%s] : Total Bytes %.3f GB Speed: %.3fGbps", dT/(60*60), date, float64(offset)/1e9, bps/1e9)
}

// Elapsed is the wall time since the progress reporter was created.
func (p *Progress) Elapsed() time.Duration {
	return p.clock.Since(p.start)
}
