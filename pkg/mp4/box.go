// Package mp4 implements decoding of ISO Base Media File Format boxes.
package mp4

import (
	"errors"
)

// Parse errors. All of them are terminal for the enclosing parse call.
var (
	// ErrUnexpectedEOF fewer bytes remain than a declared field requires.
	ErrUnexpectedEOF = errors.New("unexpected end of data")

	// ErrInvalidBoxSize declared box size is smaller than its header or
	// exceeds the bytes remaining in its parent.
	ErrInvalidBoxSize = errors.New("invalid box size")

	// ErrMissingBox a mandatory box is absent.
	ErrMissingBox = errors.New("mandatory box missing")
)

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

func (t BoxType) String() string {
	return string(t[:])
}

// Known box types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeMoov = newBoxType("moov")
	TypeMvhd = newBoxType("mvhd")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeEdts = newBoxType("edts")
	TypeElst = newBoxType("elst")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeHdlr = newBoxType("hdlr")
	TypeMinf = newBoxType("minf")
	TypeStbl = newBoxType("stbl")
	TypeStsd = newBoxType("stsd")
	TypeStts = newBoxType("stts")
	TypeStsc = newBoxType("stsc")
	TypeStco = newBoxType("stco")
	TypeCo64 = newBoxType("co64")
	TypeStsz = newBoxType("stsz")
	TypeStz2 = newBoxType("stz2")
	TypeCtts = newBoxType("ctts")
	TypeStss = newBoxType("stss")
	TypeMvex = newBoxType("mvex")
	TypeMehd = newBoxType("mehd")
	TypeTrex = newBoxType("trex")
	TypeMoof = newBoxType("moof")
	TypeMfhd = newBoxType("mfhd")
	TypeTraf = newBoxType("traf")
	TypeTfhd = newBoxType("tfhd")
	TypeTfdt = newBoxType("tfdt")
	TypeTrun = newBoxType("trun")
	TypeMdat = newBoxType("mdat")
	TypeEmsg = newBoxType("emsg")
	TypeUUID = newBoxType("uuid")

	TypeAvc1 = newBoxType("avc1")
	TypeAvc3 = newBoxType("avc3")
	TypeHev1 = newBoxType("hev1")
	TypeHvc1 = newBoxType("hvc1")
	TypeVp08 = newBoxType("vp08")
	TypeVp09 = newBoxType("vp09")
	TypeAv01 = newBoxType("av01")
	TypeMp4a = newBoxType("mp4a")
	TypeTx3g = newBoxType("tx3g")

	TypeAvcC = newBoxType("avcC")
	TypeHvcC = newBoxType("hvcC")
	TypeVpcC = newBoxType("vpcC")
	TypeAv1C = newBoxType("av1C")
	TypeEsds = newBoxType("esds")
)

// Reader is a bounded big-endian cursor over a byte buffer. The buffer is
// never mutated, only the cursor position advances.
type Reader struct {
	buf []byte
	pos int
	end int

	// TryError holds the first error occurred in TryXXX() methods.
	TryError error
}

// NewReader returns a new Reader over the whole buffer.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, end: len(buf)}
}

func newReaderRange(buf []byte, start, end int) *Reader {
	return &Reader{buf: buf, pos: start, end: end}
}

// Pos returns the current position in the buffer.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return r.end - r.pos
}

func (r *Reader) require(n int) bool {
	if r.TryError != nil {
		return false
	}
	if r.end-r.pos < n {
		r.TryError = ErrUnexpectedEOF
		return false
	}
	return true
}

// TryReadByte reads 8 bits.
func (r *Reader) TryReadByte() byte {
	if !r.require(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

// TryReadUint16 reads 16 bits.
func (r *Reader) TryReadUint16() uint16 {
	if !r.require(2) {
		return 0
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v
}

// TryReadUint24 reads 24 bits.
func (r *Reader) TryReadUint24() uint32 {
	if !r.require(3) {
		return 0
	}
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += 3
	return v
}

// TryReadUint32 reads 32 bits.
func (r *Reader) TryReadUint32() uint32 {
	if !r.require(4) {
		return 0
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 |
		uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v
}

// TryReadUint64 reads 64 bits.
func (r *Reader) TryReadUint64() uint64 {
	hi := r.TryReadUint32()
	lo := r.TryReadUint32()
	return uint64(hi)<<32 | uint64(lo)
}

// TryReadInt32 reads a signed 32-bit value.
func (r *Reader) TryReadInt32() int32 {
	return int32(r.TryReadUint32())
}

// TryReadBoxType reads a 4-byte type tag.
func (r *Reader) TryReadBoxType() BoxType {
	var t BoxType
	if !r.require(4) {
		return t
	}
	copy(t[:], r.buf[r.pos:])
	r.pos += 4
	return t
}

// TryReadBytes returns the next n bytes as a view into the buffer.
func (r *Reader) TryReadBytes(n int) []byte {
	if n < 0 || !r.require(n) {
		return nil
	}
	v := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return v
}

// TrySkip advances the cursor by n bytes.
func (r *Reader) TrySkip(n int) {
	if n < 0 || !r.require(n) {
		return
	}
	r.pos += n
}

// Header is a parsed box header.
type Header struct {
	Type BoxType

	// Size is the total box size including the header.
	// Zero means the box extends to the end of the enclosing bounds.
	Size uint64

	// HeaderLen is the number of header bytes, 8 unless an extended
	// size or uuid extended type is present.
	HeaderLen int
}

// ReadHeader parses a box header at the cursor position. The declared size
// is validated against the cursor bounds.
func ReadHeader(r *Reader) (Header, error) {
	remaining := r.Remaining()

	size := uint64(r.TryReadUint32())
	typ := r.TryReadBoxType()
	hdrLen := 8

	if size == 1 {
		size = r.TryReadUint64()
		hdrLen += 8
	}
	if typ == TypeUUID {
		// Extended type is retained in the opaque payload range.
		r.TrySkip(16)
		hdrLen += 16
	}
	if r.TryError != nil {
		return Header{}, r.TryError
	}

	if size != 0 {
		if size < uint64(hdrLen) || size > uint64(remaining) {
			return Header{}, ErrInvalidBoxSize
		}
	}

	return Header{Type: typ, Size: size, HeaderLen: hdrLen}, nil
}
