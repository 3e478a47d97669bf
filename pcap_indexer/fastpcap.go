package pcap_indexer

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// CaptureHeaderSize is the size of the legacy pcap file header.
const CaptureHeaderSize = 24

// RecordHeaderSize is the size of the per-packet record header.
const RecordHeaderSize = 16

// MaxCaptureLength is the largest captured length accepted for a record.
const MaxCaptureLength = 128 * 1024

const magicMicroseconds = 0xA1B2C3D4
const magicNanoseconds = 0xA1B23C4D

const magicGzip1 = 0x1f
const magicGzip2 = 0x8b

// TimeScale converts the sub-second field of a record to nanoseconds.
type TimeScale uint64

const (
	NanosecondScale  TimeScale = 1
	MicrosecondScale TimeScale = 1000
	// UnknownTimeScale is used for headers with an unrecognised magic when
	// ReaderOptions.AllowUnknownMagic is set. Sub-second fractions vanish.
	UnknownTimeScale TimeScale = 0
)

func (s TimeScale) String() string {
	switch s {
	case NanosecondScale:
		return "nano"
	case MicrosecondScale:
		return "micro"
	}
	return "unknown"
}

var (
	ErrMalformedHeader   = errors.New("malformed capture header")
	ErrUnsupportedFormat = errors.New("unsupported capture format")
	ErrTruncatedRecord   = errors.New("truncated record header")
	ErrInvalidLength     = errors.New("invalid packet length")
	ErrShortPayload      = errors.New("payload read fail")
)

// CaptureHeader is the decoded file header. It never changes after
// NewReader returns.
type CaptureHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	TimeZone     uint32
	SigFigs      uint32
	Snaplen      uint32
	LinkType     layers.LinkType
	Scale        TimeScale
}

// Record is one decoded packet record. Data is only valid until the next
// call to Next.
type Record struct {
	Seconds       uint32
	SubSeconds    uint32
	CaptureLength uint32
	Length        uint32
	// Offset of the record header from the start of the capture stream.
	Offset uint64
	Data   []byte
}

// Timestamp returns the record time in nanoseconds since the epoch.
func (rec Record) Timestamp(scale TimeScale) uint64 {
	return uint64(rec.Seconds)*1000000000 + uint64(rec.SubSeconds)*uint64(scale)
}

// Entry projects the record onto its index entry.
func (rec Record) Entry(scale TimeScale) Entry {
	return Entry{Timestamp: rec.Timestamp(scale), Offset: rec.Offset}
}

type ReaderOptions struct {
	// AllowUnknownMagic accepts headers whose magic is neither the
	// microsecond nor the nanosecond variant, using UnknownTimeScale.
	AllowUnknownMagic bool
}

// Reader walks the records of a little-endian legacy pcap stream.
type Reader struct {
	r      io.Reader
	header CaptureHeader
	offset uint64
	pnum   uint64

	// reusable buffers
	buf  [RecordHeaderSize]byte
	data []byte
}

// NewReader reads and validates the capture header. A gzip compressed
// stream is decompressed transparently.
func NewReader(r io.Reader, opts ReaderOptions) (*Reader, error) {
	ret := Reader{r: r}
	if err := ret.readHeader(opts); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *Reader) readHeader(opts ReaderOptions) error {
	br := bufio.NewReader(r.r)
	gzipMagic, err := br.Peek(2)
	if err == nil && gzipMagic[0] == magicGzip1 && gzipMagic[1] == magicGzip2 {
		if r.r, err = gzip.NewReader(br); err != nil {
			return errors.Wrap(ErrMalformedHeader, err.Error())
		}
	} else {
		r.r = br
	}

	buf := make([]byte, CaptureHeaderSize)
	if n, err := io.ReadFull(r.r, buf); err != nil {
		return errors.Wrapf(ErrMalformedHeader, "read %d of %d bytes", n, CaptureHeaderSize)
	}
	h := &r.header
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.VersionMajor = binary.LittleEndian.Uint16(buf[4:6])
	h.VersionMinor = binary.LittleEndian.Uint16(buf[6:8])
	h.TimeZone = binary.LittleEndian.Uint32(buf[8:12])
	h.SigFigs = binary.LittleEndian.Uint32(buf[12:16])
	h.Snaplen = binary.LittleEndian.Uint32(buf[16:20])
	h.LinkType = layers.LinkType(binary.LittleEndian.Uint32(buf[20:24]))
	switch h.Magic {
	case magicNanoseconds:
		h.Scale = NanosecondScale
	case magicMicroseconds:
		h.Scale = MicrosecondScale
	default:
		if !opts.AllowUnknownMagic {
			return errors.Wrapf(ErrUnsupportedFormat, "unknown magic %x", h.Magic)
		}
		h.Scale = UnknownTimeScale
	}
	r.offset = CaptureHeaderSize
	return nil
}

// Next decodes the next record. It returns io.EOF when the stream ends
// cleanly on a record boundary. Any other error is fatal: the offset
// bookkeeping cannot be trusted past it.
func (r *Reader) Next() (rec Record, err error) {
	n, err := io.ReadFull(r.r, r.buf[:])
	if err == io.EOF {
		return rec, io.EOF
	}
	if err != nil {
		return rec, errors.Wrapf(ErrTruncatedRecord, "packet %d at offset %d: read %d of %d bytes", r.pnum, r.offset, n, RecordHeaderSize)
	}
	rec.Seconds = binary.LittleEndian.Uint32(r.buf[0:4])
	rec.SubSeconds = binary.LittleEndian.Uint32(r.buf[4:8])
	rec.CaptureLength = binary.LittleEndian.Uint32(r.buf[8:12])
	rec.Length = binary.LittleEndian.Uint32(r.buf[12:16])
	rec.Offset = r.offset

	if rec.CaptureLength == 0 || rec.CaptureLength > MaxCaptureLength {
		return rec, errors.Wrapf(ErrInvalidLength, "packet %d at offset %d: %d", r.pnum, r.offset, rec.CaptureLength)
	}

	if cap(r.data) < int(rec.CaptureLength) {
		r.data = make([]byte, rec.CaptureLength)
	}
	rec.Data = r.data[:rec.CaptureLength]
	if n, err := io.ReadFull(r.r, rec.Data); err != nil {
		return rec, errors.Wrapf(ErrShortPayload, "packet %d at offset %d: read %d expect %d", r.pnum, r.offset, n, rec.CaptureLength)
	}

	r.offset += RecordHeaderSize + uint64(rec.CaptureLength)
	r.pnum++
	return rec, nil
}

// Header returns the decoded capture header.
func (r *Reader) Header() CaptureHeader {
	return r.header
}

// Scale returns the time scale resolved from the header magic.
func (r *Reader) Scale() TimeScale {
	return r.header.Scale
}

// LinkType returns network, as a layers.LinkType.
func (r *Reader) LinkType() layers.LinkType {
	return r.header.LinkType
}

// Snaplen returns the snapshot length of the capture file.
func (r *Reader) Snaplen() uint32 {
	return r.header.Snaplen
}

// Offset is the stream position of the next record header.
func (r *Reader) Offset() uint64 {
	return r.offset
}

// Reader formater
func (r *Reader) String() string {
	return fmt.Sprintf("PcapFile magic: %x maj: %x min: %x snaplen: %d linktype: %s scale: %s",
		r.header.Magic, r.header.VersionMajor, r.header.VersionMinor, r.header.Snaplen, r.header.LinkType, r.header.Scale)
}
