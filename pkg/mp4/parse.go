package mp4

import (
	"fmt"
)

// containers are the box types descended into recursively.
var containers = map[BoxType]bool{
	TypeMoov: true,
	TypeTrak: true,
	TypeEdts: true,
	TypeMdia: true,
	TypeMinf: true,
	TypeStbl: true,
	TypeMvex: true,
	TypeMoof: true,
	TypeTraf: true,
}

// Box is a node in the parsed box tree. Known leaf types carry exactly one
// non-nil typed payload; unrecognized types are retained opaquely as their
// byte range in the source buffer.
type Box struct {
	Type      BoxType
	Start     int // offset of the box header in the source buffer
	End       int // offset one past the last payload byte
	HeaderLen int

	Children []*Box

	Ftyp *Ftyp
	Mvhd *Mvhd
	Tkhd *Tkhd
	Mdhd *Mdhd
	Hdlr *Hdlr
	Elst *Elst
	Stsd *Stsd
	Stts *Stts
	Ctts *Ctts
	Stsc *Stsc
	Stco *Stco
	Co64 *Co64
	Stsz *Stsz
	Stz2 *Stz2
	Stss *Stss
	Mehd *Mehd
	Trex *Trex
	Mfhd *Mfhd
	Tfhd *Tfhd
	Tfdt *Tfdt
	Trun *Trun
	Emsg *Emsg
}

// Payload returns the box payload bytes as a view into the source buffer.
func (b *Box) Payload(src []byte) []byte {
	return src[b.Start+b.HeaderLen : b.End]
}

// Child returns the first child box of the given type, or nil.
func (b *Box) Child(t BoxType) *Box {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildAll returns all child boxes of the given type in order.
func (b *Box) ChildAll(t BoxType) []*Box {
	var out []*Box
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (b *Box) decode(r *Reader) error {
	switch b.Type {
	case TypeFtyp:
		b.Ftyp = &Ftyp{}
		return b.Ftyp.Unmarshal(r)
	case TypeMvhd:
		b.Mvhd = &Mvhd{}
		return b.Mvhd.Unmarshal(r)
	case TypeTkhd:
		b.Tkhd = &Tkhd{}
		return b.Tkhd.Unmarshal(r)
	case TypeMdhd:
		b.Mdhd = &Mdhd{}
		return b.Mdhd.Unmarshal(r)
	case TypeHdlr:
		b.Hdlr = &Hdlr{}
		return b.Hdlr.Unmarshal(r)
	case TypeElst:
		b.Elst = &Elst{}
		return b.Elst.Unmarshal(r)
	case TypeStsd:
		b.Stsd = &Stsd{}
		return b.Stsd.Unmarshal(r)
	case TypeStts:
		b.Stts = &Stts{}
		return b.Stts.Unmarshal(r)
	case TypeCtts:
		b.Ctts = &Ctts{}
		return b.Ctts.Unmarshal(r)
	case TypeStsc:
		b.Stsc = &Stsc{}
		return b.Stsc.Unmarshal(r)
	case TypeStco:
		b.Stco = &Stco{}
		return b.Stco.Unmarshal(r)
	case TypeCo64:
		b.Co64 = &Co64{}
		return b.Co64.Unmarshal(r)
	case TypeStsz:
		b.Stsz = &Stsz{}
		return b.Stsz.Unmarshal(r)
	case TypeStz2:
		b.Stz2 = &Stz2{}
		return b.Stz2.Unmarshal(r)
	case TypeStss:
		b.Stss = &Stss{}
		return b.Stss.Unmarshal(r)
	case TypeMehd:
		b.Mehd = &Mehd{}
		return b.Mehd.Unmarshal(r)
	case TypeTrex:
		b.Trex = &Trex{}
		return b.Trex.Unmarshal(r)
	case TypeMfhd:
		b.Mfhd = &Mfhd{}
		return b.Mfhd.Unmarshal(r)
	case TypeTfhd:
		b.Tfhd = &Tfhd{}
		return b.Tfhd.Unmarshal(r)
	case TypeTfdt:
		b.Tfdt = &Tfdt{}
		return b.Tfdt.Unmarshal(r)
	case TypeTrun:
		b.Trun = &Trun{}
		return b.Trun.Unmarshal(r)
	case TypeEmsg:
		b.Emsg = &Emsg{}
		return b.Emsg.Unmarshal(r)
	}
	// Unrecognized types are tolerated and kept opaque.
	return nil
}

func parseBox(r *Reader) (*Box, error) {
	start := r.Pos()
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	end := start + int(h.Size)
	if h.Size == 0 {
		// Box extends to the end of the enclosing bounds.
		end = r.end
	}

	box := &Box{
		Type:      h.Type,
		Start:     start,
		End:       end,
		HeaderLen: h.HeaderLen,
	}

	body := newReaderRange(r.buf, start+h.HeaderLen, end)
	if containers[h.Type] {
		for body.Remaining() >= 8 {
			child, err := parseBox(body)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", h.Type, err)
			}
			box.Children = append(box.Children, child)
		}
	} else if err := box.decode(body); err != nil {
		return nil, fmt.Errorf("%s: %w", h.Type, err)
	}

	r.pos = end
	return box, nil
}

// File is the parsed top level of an ISO-BMFF stream. It holds only
// borrowed views into the source buffer.
type File struct {
	Src []byte

	Ftyp  *Ftyp
	Moov  *Box
	Moofs []*Box
	Emsgs []*Emsg

	// TopLevel lists every top-level box in file order, including
	// opaque ones.
	TopLevel []*Box
}

// Parse decodes the box tree of a complete ISO-BMFF byte stream.
// A missing moov box is ErrMissingBox; unknown box types are retained
// opaquely and never an error.
func Parse(buf []byte) (*File, error) {
	f := &File{Src: buf}

	r := NewReader(buf)
	for r.Remaining() >= 8 {
		box, err := parseBox(r)
		if err != nil {
			return nil, err
		}
		f.TopLevel = append(f.TopLevel, box)

		switch box.Type {
		case TypeFtyp:
			f.Ftyp = box.Ftyp
		case TypeMoov:
			if f.Moov == nil {
				f.Moov = box
			}
		case TypeMoof:
			f.Moofs = append(f.Moofs, box)
		case TypeEmsg:
			f.Emsgs = append(f.Emsgs, box.Emsg)
		}
	}

	if f.Moov == nil {
		return nil, fmt.Errorf("moov: %w", ErrMissingBox)
	}
	return f, nil
}
