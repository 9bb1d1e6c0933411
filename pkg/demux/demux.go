// Package demux extracts per-track codec configuration and an ordered,
// timestamped index of encoded samples from ISO base-media (MP4) files,
// without decoding any media payload.
package demux

import (
	"errors"
	"fmt"
	"os"

	"mp4demux/pkg/mp4"
)

// ErrConfigNotFound no recognized codec-configuration box in the track's
// sample description.
var ErrConfigNotFound = errors.New("no codec configuration found")

// ErrOverflow signed timing or offset arithmetic would wrap.
var ErrOverflow = errors.New("arithmetic overflow")

// TrackKind is the media kind of a track.
type TrackKind int

// Track kinds.
const (
	TrackUnknown TrackKind = iota
	TrackVideo
	TrackAudio
	TrackSubtitle
)

// String returns the kind name.
func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	}
	return "unknown"
}

// Sample is one encoded sample. Timestamps and duration are in
// microseconds. ByteOffset and ByteLength address the track's
// consolidated Data buffer.
type Sample struct {
	Index  int
	IsSync bool

	ByteOffset uint64
	ByteLength uint32

	DecodeTime int64
	PresTime   int64
	Duration   int64
}

// Segment is a closed picture group: a sync sample and its dependent
// samples up to the next sync sample. Start is the presentation
// timestamp of the first sample in microseconds.
type Segment struct {
	Start   int64
	Samples []Sample
}

// DecoderConfig is the record handed to an external video decoder.
type DecoderConfig struct {
	Codec       string
	CodedWidth  uint
	CodedHeight uint
	Description []byte
}

// Track is one demuxed track. Samples are decode-ordered; Data holds the
// track's media payload as one contiguous buffer.
type Track struct {
	ID        uint32
	Kind      TrackKind
	Codec     string
	Timescale uint32

	// Duration in track timescale units.
	Duration uint64

	CodedWidth  uint
	CodedHeight uint

	Samples  []Sample
	Segments []Segment
	Data     []byte

	entry *mp4.SampleEntry
}

// Config returns the codec-specific initialization bytes of the track's
// first sample description entry, with the configuration box header
// stripped.
func (t *Track) Config() ([]byte, error) {
	if t.entry == nil || t.entry.Config == nil {
		return nil, fmt.Errorf("track %d: %w", t.ID, ErrConfigNotFound)
	}
	return t.entry.Config.Raw, nil
}

// DecoderConfig returns the full decoder-configuration record.
func (t *Track) DecoderConfig() (DecoderConfig, error) {
	desc, err := t.Config()
	if err != nil {
		return DecoderConfig{}, err
	}
	return DecoderConfig{
		Codec:       t.Codec,
		CodedWidth:  t.CodedWidth,
		CodedHeight: t.CodedHeight,
		Description: desc,
	}, nil
}

// Presentation is the demuxed form of one MP4 file.
type Presentation struct {
	// MovieTimescale is the mvhd timescale, zero if absent.
	MovieTimescale uint32

	// Tracks in file order.
	Tracks []*Track
}

// VideoTrack returns the first video track.
func (p *Presentation) VideoTrack() *Track {
	for _, t := range p.Tracks {
		if t.Kind == TrackVideo {
			return t
		}
	}
	return nil
}

// TrackByID returns the track with the given id, or nil.
func (p *Presentation) TrackByID(id uint32) *Track {
	for _, t := range p.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Parse demuxes a complete ISO-BMFF byte stream. The buffer is only
// borrowed during the call; each track's payload is consolidated into its
// own buffer before returning.
func Parse(buf []byte) (*Presentation, error) {
	f, err := mp4.Parse(buf)
	if err != nil {
		return nil, err
	}

	p := &Presentation{}
	if mvhd := f.Moov.Child(mp4.TypeMvhd); mvhd != nil && mvhd.Mvhd != nil {
		p.MovieTimescale = mvhd.Mvhd.Timescale
	}

	trexes := map[uint32]*mp4.Trex{}
	if mvex := f.Moov.Child(mp4.TypeMvex); mvex != nil {
		for _, tb := range mvex.ChildAll(mp4.TypeTrex) {
			if tb.Trex != nil {
				trexes[tb.Trex.TrackID] = tb.Trex
			}
		}
	}

	for _, trak := range f.Moov.ChildAll(mp4.TypeTrak) {
		track, sources, err := newTrack(f, trak, trexes)
		if err != nil {
			return nil, err
		}
		if track == nil {
			// Not a usable track, tolerated.
			continue
		}

		var raw []rawSample
		for _, src := range sources {
			raw, err = src.appendSamples(raw)
			if err != nil {
				return nil, fmt.Errorf("track %d: %w", track.ID, err)
			}
		}

		if err := track.assemble(raw, buf); err != nil {
			return nil, fmt.Errorf("track %d: %w", track.ID, err)
		}
		p.Tracks = append(p.Tracks, track)
	}

	if v := p.VideoTrack(); v == nil {
		return nil, fmt.Errorf("no video track with a sample description: %w", mp4.ErrMissingBox)
	}
	return p, nil
}

// ParseFile reads and demuxes an MP4 file.
func ParseFile(path string) (*Presentation, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(buf)
}

func trackKind(entry *mp4.SampleEntry, hdlr *mp4.Hdlr) TrackKind {
	if entry != nil {
		switch entry.Type {
		case mp4.TypeAvc1, mp4.TypeAvc3, mp4.TypeHev1, mp4.TypeHvc1,
			mp4.TypeVp08, mp4.TypeVp09, mp4.TypeAv01:
			return TrackVideo
		case mp4.TypeMp4a:
			return TrackAudio
		case mp4.TypeTx3g:
			return TrackSubtitle
		}
	}
	if hdlr != nil {
		switch hdlr.HandlerType {
		case mp4.BoxType{'v', 'i', 'd', 'e'}:
			return TrackVideo
		case mp4.BoxType{'s', 'o', 'u', 'n'}:
			return TrackAudio
		case mp4.BoxType{'s', 'b', 't', 'l'}:
			return TrackSubtitle
		}
	}
	return TrackUnknown
}

// newTrack builds the track skeleton and its ordered sample sources
// (classic sample table first, then fragments in file order). A trak
// without the boxes needed to index samples returns a nil track.
func newTrack(
	f *mp4.File,
	trak *mp4.Box,
	trexes map[uint32]*mp4.Trex,
) (*Track, []sampleSource, error) {
	tkhd := trak.Child(mp4.TypeTkhd)
	mdia := trak.Child(mp4.TypeMdia)
	if tkhd == nil || tkhd.Tkhd == nil || mdia == nil {
		return nil, nil, nil
	}
	mdhd := mdia.Child(mp4.TypeMdhd)
	hdlr := mdia.Child(mp4.TypeHdlr)
	minf := mdia.Child(mp4.TypeMinf)
	if mdhd == nil || mdhd.Mdhd == nil || minf == nil {
		return nil, nil, nil
	}
	stbl := minf.Child(mp4.TypeStbl)
	if stbl == nil {
		return nil, nil, nil
	}
	if mdhd.Mdhd.Timescale == 0 {
		return nil, nil, fmt.Errorf("track %d: zero timescale: %w",
			tkhd.Tkhd.TrackID, mp4.ErrInvalidBoxSize)
	}

	var entry *mp4.SampleEntry
	if stsd := stbl.Child(mp4.TypeStsd); stsd != nil && stsd.Stsd != nil &&
		len(stsd.Stsd.Entries) > 0 {
		entry = &stsd.Stsd.Entries[0]
	}

	var hdlrBox *mp4.Hdlr
	if hdlr != nil {
		hdlrBox = hdlr.Hdlr
	}

	track := &Track{
		ID:        tkhd.Tkhd.TrackID,
		Kind:      trackKind(entry, hdlrBox),
		Timescale: mdhd.Mdhd.Timescale,
		Duration:  mdhd.Mdhd.Duration,
		entry:     entry,
	}
	if entry != nil {
		track.Codec = codecName(entry)
		track.CodedWidth = uint(entry.Width)
		track.CodedHeight = uint(entry.Height)
	}

	var sources []sampleSource

	stblSrc, err := newStblSource(stbl, mdhd.Mdhd, len(f.Src))
	if err != nil {
		return nil, nil, fmt.Errorf("track %d: %w", track.ID, err)
	}
	if stblSrc != nil {
		sources = append(sources, stblSrc)
	}

	state := &fragState{}
	for _, moof := range f.Moofs {
		for _, traf := range moof.ChildAll(mp4.TypeTraf) {
			tfhd := traf.Child(mp4.TypeTfhd)
			if tfhd == nil || tfhd.Tfhd == nil || tfhd.Tfhd.TrackID != track.ID {
				continue
			}
			sources = append(sources, newTrafSource(moof, traf, trexes[track.ID], state, len(f.Src)))
		}
	}

	return track, sources, nil
}

// assemble scales timestamps, applies the whole-track shift, consolidates
// the payload into one contiguous buffer and builds the segment list.
func (t *Track) assemble(raw []rawSample, src []byte) error {
	samples, err := normalize(raw, t.Timescale)
	if err != nil {
		return err
	}

	// The single consolidating copy: all sample bytes move into one
	// buffer and offsets are rewritten to be buffer-relative.
	var total uint64
	for i := range raw {
		total += uint64(raw[i].size)
	}
	t.Data = make([]byte, 0, total)
	for i := range raw {
		start := raw[i].offset
		end := start + int64(raw[i].size)
		if start < 0 || end > int64(len(src)) || start > end {
			return fmt.Errorf("sample %d data [%d:%d) out of range: %w",
				i, start, end, mp4.ErrUnexpectedEOF)
		}
		samples[i].ByteOffset = uint64(len(t.Data))
		samples[i].ByteLength = raw[i].size
		t.Data = append(t.Data, src[start:end]...)
	}

	t.Samples = samples
	t.Segments = buildSegments(samples)

	if t.Duration == 0 && len(raw) > 0 {
		last := raw[len(raw)-1]
		t.Duration = uint64(last.dts + last.dur)
	}
	return nil
}

// SampleData returns the bytes of one sample as a view into the track's
// consolidated buffer.
func (t *Track) SampleData(s Sample) []byte {
	return t.Data[s.ByteOffset : s.ByteOffset+uint64(s.ByteLength)]
}
