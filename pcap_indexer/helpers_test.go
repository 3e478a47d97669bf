package pcap_indexer

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type testPacket struct {
	ts     time.Time
	length int
}

// writeCapture builds a well formed capture with gopacket's writer.
func writeCapture(t *testing.T, nanos bool, pkts []testPacket) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w *pcapgo.Writer
	if nanos {
		w = pcapgo.NewWriterNanos(&buf)
	} else {
		w = pcapgo.NewWriter(&buf)
	}
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, p := range pkts {
		data := bytes.Repeat([]byte{byte(i)}, p.length)
		ci := gopacket.CaptureInfo{Timestamp: p.ts, CaptureLength: p.length, Length: p.length}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return buf.Bytes()
}

// rawCapture writes headers by hand so tests can produce corrupt input.
type rawCapture struct {
	bytes.Buffer
}

func (c *rawCapture) header(magic uint32) *rawCapture {
	var h [CaptureHeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:4], magic)
	binary.LittleEndian.PutUint16(h[4:6], 2)
	binary.LittleEndian.PutUint16(h[6:8], 4)
	binary.LittleEndian.PutUint32(h[16:20], 65535)
	binary.LittleEndian.PutUint32(h[20:24], uint32(layers.LinkTypeEthernet))
	c.Write(h[:])
	return c
}

func (c *rawCapture) record(sec, sub, captureLength uint32, payload int) *rawCapture {
	var h [RecordHeaderSize]byte
	binary.LittleEndian.PutUint32(h[0:4], sec)
	binary.LittleEndian.PutUint32(h[4:8], sub)
	binary.LittleEndian.PutUint32(h[8:12], captureLength)
	binary.LittleEndian.PutUint32(h[12:16], captureLength)
	c.Write(h[:])
	c.Write(make([]byte, payload))
	return c
}

func readEntries(t *testing.T, b []byte) []Entry {
	t.Helper()
	require.Zero(t, len(b)%EntrySize, "index length %d", len(b))
	r := NewIndexReader(bytes.NewReader(b))
	var entries []Entry
	for {
		e, err := r.ReadEntry()
		if err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}
