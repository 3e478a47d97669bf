package pcap_indexer

import (
	"encoding/binary"
	"io"
)

// EntrySize is the on-disk size of one index entry.
const EntrySize = 16

// Entry is one index record: the nanosecond epoch timestamp of a packet and
// the byte offset of its record header in the capture.
type Entry struct {
	Timestamp uint64
	Offset    uint64
}

type IndexWriter struct {
	w   io.Writer
	buf [EntrySize]byte
}

func (w *IndexWriter) WriteEntry(e Entry) error {
	binary.LittleEndian.PutUint64(w.buf[0:8], e.Timestamp)
	binary.LittleEndian.PutUint64(w.buf[8:16], e.Offset)
	_, err := w.w.Write(w.buf[:])
	return err
}

func NewIndexWriter(w io.Writer) *IndexWriter {
	return &IndexWriter{w: w}
}

type IndexReader struct {
	r   io.Reader
	buf [EntrySize]byte
}

// ReadEntry returns io.EOF at a clean end and io.ErrUnexpectedEOF when the
// index ends partway through an entry.
func (r *IndexReader) ReadEntry() (Entry, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		return Entry{}, err
	}
	return Entry{
		Timestamp: binary.LittleEndian.Uint64(r.buf[0:8]),
		Offset:    binary.LittleEndian.Uint64(r.buf[8:16]),
	}, nil
}

func NewIndexReader(r io.Reader) *IndexReader {
	return &IndexReader{r: r}
}
