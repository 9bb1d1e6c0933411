package mp4

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
)

/************************* FullBox **************************/

// FullBox is ISOBMFF FullBox.
type FullBox struct {
	Version uint8
	Flags   [3]byte
}

// GetFlags returns the flags.
func (b *FullBox) GetFlags() uint32 {
	flag := uint32(b.Flags[0]) << 16
	flag ^= uint32(b.Flags[1]) << 8
	flag ^= uint32(b.Flags[2])
	return flag
}

// CheckFlag checks the flag status.
func (b *FullBox) CheckFlag(flag uint32) bool {
	return b.GetFlags()&flag != 0
}

// UnmarshalField reads the version and flags.
func (b *FullBox) UnmarshalField(r *Reader) error {
	b.Version = r.TryReadByte()
	b.Flags[0] = r.TryReadByte()
	b.Flags[1] = r.TryReadByte()
	b.Flags[2] = r.TryReadByte()
	return r.TryError
}

// entryCountGuard rejects entry counts that could not fit in the box.
func entryCountGuard(r *Reader, count uint32, entrySize int) error {
	if int64(count)*int64(entrySize) > int64(r.Remaining()) {
		return fmt.Errorf("entry count %d: %w", count, ErrInvalidBoxSize)
	}
	return nil
}

/*************************** ftyp ****************************/

// Ftyp is ISOBMFF ftyp box type.
type Ftyp struct {
	MajorBrand       BoxType
	MinorVersion     uint32
	CompatibleBrands []BoxType
}

// Unmarshal box from reader.
func (b *Ftyp) Unmarshal(r *Reader) error {
	b.MajorBrand = r.TryReadBoxType()
	b.MinorVersion = r.TryReadUint32()
	for r.TryError == nil && r.Remaining() >= 4 {
		b.CompatibleBrands = append(b.CompatibleBrands, r.TryReadBoxType())
	}
	return r.TryError
}

/*************************** mvhd ****************************/

// Mvhd is ISOBMFF mvhd box type.
type Mvhd struct {
	FullBox
	Timescale uint32
	Duration  uint64
}

// Unmarshal box from reader.
func (b *Mvhd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		r.TrySkip(16) // creation and modification time
		b.Timescale = r.TryReadUint32()
		b.Duration = r.TryReadUint64()
	} else {
		r.TrySkip(8)
		b.Timescale = r.TryReadUint32()
		b.Duration = uint64(r.TryReadUint32())
	}
	return r.TryError
}

/*************************** tkhd ****************************/

// Tkhd is ISOBMFF tkhd box type.
type Tkhd struct {
	FullBox
	TrackID  uint32
	Duration uint64

	// Integer part of the 16.16 fixed-point presentation size.
	Width  uint16
	Height uint16
}

// Unmarshal box from reader.
func (b *Tkhd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		r.TrySkip(16)
		b.TrackID = r.TryReadUint32()
		r.TrySkip(4) // reserved
		b.Duration = r.TryReadUint64()
	} else {
		r.TrySkip(8)
		b.TrackID = r.TryReadUint32()
		r.TrySkip(4)
		b.Duration = uint64(r.TryReadUint32())
	}
	r.TrySkip(8)  // reserved
	r.TrySkip(8)  // layer, alternate group, volume, reserved
	r.TrySkip(36) // matrix
	b.Width = uint16(r.TryReadUint32() >> 16)
	b.Height = uint16(r.TryReadUint32() >> 16)
	return r.TryError
}

/*************************** mdhd ****************************/

// Mdhd is ISOBMFF mdhd box type.
type Mdhd struct {
	FullBox
	Timescale uint32
	Duration  uint64
	Language  string
}

// Unmarshal box from reader.
func (b *Mdhd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		r.TrySkip(16)
		b.Timescale = r.TryReadUint32()
		b.Duration = r.TryReadUint64()
	} else {
		r.TrySkip(8)
		b.Timescale = r.TryReadUint32()
		b.Duration = uint64(r.TryReadUint32())
	}
	lang := r.TryReadUint16()
	if r.TryError != nil {
		return r.TryError
	}
	b.Language = string([]byte{
		byte((lang>>10)&0x1f) + 0x60,
		byte((lang>>5)&0x1f) + 0x60,
		byte(lang&0x1f) + 0x60,
	})
	return nil
}

/*************************** hdlr ****************************/

// Hdlr is ISOBMFF hdlr box type.
type Hdlr struct {
	FullBox
	HandlerType BoxType
	Name        string
}

// Unmarshal box from reader.
func (b *Hdlr) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	r.TrySkip(4) // pre_defined
	b.HandlerType = r.TryReadBoxType()
	r.TrySkip(12) // reserved
	if r.TryError != nil {
		return r.TryError
	}
	name := r.TryReadBytes(r.Remaining())
	b.Name = string(bytes.TrimRight(name, "\x00"))
	return r.TryError
}

/*************************** elst ****************************/

// Elst is ISOBMFF elst box type.
type Elst struct {
	FullBox
	Entries []ElstEntry
}

// ElstEntry .
type ElstEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

// Unmarshal box from reader.
func (b *Elst) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	entrySize := 12
	if b.Version == 1 {
		entrySize = 20
	}
	if err := entryCountGuard(r, count, entrySize); err != nil {
		return err
	}
	b.Entries = make([]ElstEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e ElstEntry
		if b.Version == 1 {
			e.SegmentDuration = r.TryReadUint64()
			e.MediaTime = int64(r.TryReadUint64())
		} else {
			e.SegmentDuration = uint64(r.TryReadUint32())
			e.MediaTime = int64(r.TryReadInt32())
		}
		e.MediaRateInteger = int16(r.TryReadUint16())
		e.MediaRateFraction = int16(r.TryReadUint16())
		b.Entries = append(b.Entries, e)
	}
	return r.TryError
}

/*************************** stsd ****************************/

// ConfigKind identifies a codec-specific configuration box kind.
type ConfigKind int

// The closed set of recognized configuration kinds.
const (
	ConfigUnrecognized ConfigKind = iota
	ConfigAvcC
	ConfigHvcC
	ConfigVpcC
	ConfigAv1C
)

func configKind(t BoxType) ConfigKind {
	switch t {
	case TypeAvcC:
		return ConfigAvcC
	case TypeHvcC:
		return ConfigHvcC
	case TypeVpcC:
		return ConfigVpcC
	case TypeAv1C:
		return ConfigAv1C
	}
	return ConfigUnrecognized
}

// CodecConfig is the codec-specific configuration sub-box of a sample
// entry. Raw is the payload with the 8-byte box header stripped, a view
// into the source buffer.
type CodecConfig struct {
	Kind ConfigKind
	Type BoxType
	Raw  []byte
}

// SampleEntry is one entry in an stsd box. Visual fields are zero for
// audio entries and vice versa.
type SampleEntry struct {
	Type               BoxType
	DataReferenceIndex uint16

	// Visual.
	Width      uint16
	Height     uint16
	FrameCount uint16
	Depth      uint16

	// Audio.
	ChannelCount uint16
	SampleSize   uint16
	SampleRate   uint32

	Config *CodecConfig
}

// Stsd is ISOBMFF stsd box type.
type Stsd struct {
	FullBox
	EntryCount uint32
	Entries    []SampleEntry
}

func isVisualEntry(t BoxType) bool {
	switch t {
	case TypeAvc1, TypeAvc3, TypeHev1, TypeHvc1, TypeVp08, TypeVp09, TypeAv01:
		return true
	}
	return false
}

// Unmarshal box from reader.
func (b *Stsd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.EntryCount = r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}

	for i := uint32(0); i < b.EntryCount && r.Remaining() >= 8; i++ {
		entryStart := r.Pos()
		h, err := ReadHeader(r)
		if err != nil {
			return fmt.Errorf("sample entry %d: %w", i, err)
		}
		if h.Size == 0 {
			break
		}
		entryEnd := entryStart + int(h.Size)

		e := SampleEntry{Type: h.Type}
		er := newReaderRange(r.buf, r.Pos(), entryEnd)
		if err := e.unmarshal(er); err != nil {
			return fmt.Errorf("sample entry %s: %w", h.Type, err)
		}
		b.Entries = append(b.Entries, e)

		r.pos = entryEnd
	}
	return nil
}

func (e *SampleEntry) unmarshal(r *Reader) error {
	r.TrySkip(6) // reserved
	e.DataReferenceIndex = r.TryReadUint16()

	switch {
	case isVisualEntry(e.Type):
		r.TrySkip(16) // pre_defined and reserved
		e.Width = r.TryReadUint16()
		e.Height = r.TryReadUint16()
		r.TrySkip(12) // resolution, reserved
		e.FrameCount = r.TryReadUint16()
		r.TrySkip(32) // compressorname
		e.Depth = r.TryReadUint16()
		r.TrySkip(2) // pre_defined
	case e.Type == TypeMp4a:
		r.TrySkip(8) // reserved
		e.ChannelCount = r.TryReadUint16()
		e.SampleSize = r.TryReadUint16()
		r.TrySkip(4) // pre_defined, reserved
		e.SampleRate = r.TryReadUint32() >> 16
	default:
		// Unrecognized entry kinds keep only the codec tag.
		return nil
	}
	if r.TryError != nil {
		return r.TryError
	}

	// Scan sub-boxes for a recognized configuration box.
	for r.Remaining() >= 8 {
		start := r.Pos()
		h, err := ReadHeader(r)
		if err != nil {
			return err
		}
		if h.Size == 0 {
			break
		}
		end := start + int(h.Size)
		if kind := configKind(h.Type); kind != ConfigUnrecognized {
			e.Config = &CodecConfig{
				Kind: kind,
				Type: h.Type,
				Raw:  r.buf[start+h.HeaderLen : end : end],
			}
		}
		r.pos = end
	}
	return nil
}

/*************************** stts ****************************/

// Stts is ISOBMFF stts box type.
type Stts struct {
	FullBox
	Entries []SttsEntry
}

// SttsEntry .
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// Unmarshal box from reader.
func (b *Stts) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 8); err != nil {
		return err
	}
	b.Entries = make([]SttsEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		b.Entries = append(b.Entries, SttsEntry{
			SampleCount: r.TryReadUint32(),
			SampleDelta: r.TryReadUint32(),
		})
	}
	return r.TryError
}

/*************************** ctts ****************************/

// Ctts is ISOBMFF ctts box type.
type Ctts struct {
	FullBox
	Entries []CttsEntry
}

// CttsEntry holds one composition-offset run. SampleOffset is
// sign-corrected at parse time: version 1 entries are signed and may
// legitimately be negative.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset int64
}

// Unmarshal box from reader.
func (b *Ctts) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 8); err != nil {
		return err
	}
	b.Entries = make([]CttsEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e := CttsEntry{SampleCount: r.TryReadUint32()}
		if b.Version == 1 {
			e.SampleOffset = int64(r.TryReadInt32())
		} else {
			e.SampleOffset = int64(r.TryReadUint32())
		}
		b.Entries = append(b.Entries, e)
	}
	return r.TryError
}

/*************************** stsc ****************************/

// Stsc is ISOBMFF stsc box type.
type Stsc struct {
	FullBox
	Entries []StscEntry
}

// StscEntry .
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionID uint32
}

// Unmarshal box from reader.
func (b *Stsc) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 12); err != nil {
		return err
	}
	b.Entries = make([]StscEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		b.Entries = append(b.Entries, StscEntry{
			FirstChunk:          r.TryReadUint32(),
			SamplesPerChunk:     r.TryReadUint32(),
			SampleDescriptionID: r.TryReadUint32(),
		})
	}
	return r.TryError
}

/************************ stco, co64 *************************/

// Stco is ISOBMFF stco box type.
type Stco struct {
	FullBox
	Entries []uint32
}

// Unmarshal box from reader.
func (b *Stco) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 4); err != nil {
		return err
	}
	b.Entries = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		b.Entries = append(b.Entries, r.TryReadUint32())
	}
	return r.TryError
}

// Co64 is ISOBMFF co64 box type.
type Co64 struct {
	FullBox
	Entries []uint64
}

// Unmarshal box from reader.
func (b *Co64) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 8); err != nil {
		return err
	}
	b.Entries = make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		b.Entries = append(b.Entries, r.TryReadUint64())
	}
	return r.TryError
}

/************************ stsz, stz2 *************************/

// Stsz is ISOBMFF stsz box type.
type Stsz struct {
	FullBox

	// SampleSize is the constant size for every sample, or zero when
	// Sizes carries per-sample entries.
	SampleSize  uint32
	SampleCount uint32
	Sizes       []uint32
}

// Unmarshal box from reader.
func (b *Stsz) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.SampleSize = r.TryReadUint32()
	b.SampleCount = r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if b.SampleSize != 0 {
		return nil
	}
	if err := entryCountGuard(r, b.SampleCount, 4); err != nil {
		return err
	}
	b.Sizes = make([]uint32, 0, b.SampleCount)
	for i := uint32(0); i < b.SampleCount; i++ {
		b.Sizes = append(b.Sizes, r.TryReadUint32())
	}
	return r.TryError
}

// EntrySize returns the byte size of sample i.
func (b *Stsz) EntrySize(i int) uint32 {
	if b.SampleSize != 0 {
		return b.SampleSize
	}
	return b.Sizes[i]
}

// Stz2 is ISOBMFF stz2 box type, the compact sample-size table with
// 4, 8 or 16-bit entries.
type Stz2 struct {
	FullBox
	FieldSize uint8
	Sizes     []uint32
}

// Unmarshal box from reader.
func (b *Stz2) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	r.TrySkip(3) // reserved
	b.FieldSize = r.TryReadByte()
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	switch b.FieldSize {
	case 4, 8, 16:
	default:
		return fmt.Errorf("stz2 field size %d: %w", b.FieldSize, ErrInvalidBoxSize)
	}
	need := (int64(count)*int64(b.FieldSize) + 7) / 8
	if need > int64(r.Remaining()) {
		return fmt.Errorf("stz2 entry count %d: %w", count, ErrInvalidBoxSize)
	}
	br := bitio.NewReader(bytes.NewReader(r.TryReadBytes(int(need))))
	b.Sizes = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := br.ReadBits(b.FieldSize)
		if err != nil {
			return ErrUnexpectedEOF
		}
		b.Sizes = append(b.Sizes, uint32(v))
	}
	return nil
}

/*************************** stss ****************************/

// Stss is ISOBMFF stss box type. Entries are 1-based sample numbers.
type Stss struct {
	FullBox
	Entries []uint32
}

// Unmarshal box from reader.
func (b *Stss) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	count := r.TryReadUint32()
	if r.TryError != nil {
		return r.TryError
	}
	if err := entryCountGuard(r, count, 4); err != nil {
		return err
	}
	b.Entries = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		b.Entries = append(b.Entries, r.TryReadUint32())
	}
	return r.TryError
}

/*************************** mehd ****************************/

// Mehd is ISOBMFF mehd box type.
type Mehd struct {
	FullBox
	FragmentDuration uint64
}

// Unmarshal box from reader.
func (b *Mehd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		b.FragmentDuration = r.TryReadUint64()
	} else {
		b.FragmentDuration = uint64(r.TryReadUint32())
	}
	return r.TryError
}

/*************************** trex ****************************/

// Trex is ISOBMFF trex box type.
type Trex struct {
	FullBox
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// Unmarshal box from reader.
func (b *Trex) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.TrackID = r.TryReadUint32()
	b.DefaultSampleDescriptionIndex = r.TryReadUint32()
	b.DefaultSampleDuration = r.TryReadUint32()
	b.DefaultSampleSize = r.TryReadUint32()
	b.DefaultSampleFlags = r.TryReadUint32()
	return r.TryError
}

/*************************** mfhd ****************************/

// Mfhd is ISOBMFF mfhd box type.
type Mfhd struct {
	FullBox
	SequenceNumber uint32
}

// Unmarshal box from reader.
func (b *Mfhd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.SequenceNumber = r.TryReadUint32()
	return r.TryError
}

/*************************** tfhd ****************************/

// Tfhd is ISOBMFF tfhd box type.
type Tfhd struct {
	FullBox
	TrackID uint32

	// optional
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

// tfhd flags.
const (
	TfhdBaseDataOffsetPresent         = 0x000001
	TfhdSampleDescriptionIndexPresent = 0x000002
	TfhdDefaultSampleDurationPresent  = 0x000008
	TfhdDefaultSampleSizePresent      = 0x000010
	TfhdDefaultSampleFlagsPresent     = 0x000020
	TfhdDurationIsEmpty               = 0x010000
	TfhdDefaultBaseIsMoof             = 0x020000
)

// Unmarshal box from reader.
func (b *Tfhd) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.TrackID = r.TryReadUint32()
	if b.CheckFlag(TfhdBaseDataOffsetPresent) {
		b.BaseDataOffset = r.TryReadUint64()
	}
	if b.CheckFlag(TfhdSampleDescriptionIndexPresent) {
		b.SampleDescriptionIndex = r.TryReadUint32()
	}
	if b.CheckFlag(TfhdDefaultSampleDurationPresent) {
		b.DefaultSampleDuration = r.TryReadUint32()
	}
	if b.CheckFlag(TfhdDefaultSampleSizePresent) {
		b.DefaultSampleSize = r.TryReadUint32()
	}
	if b.CheckFlag(TfhdDefaultSampleFlagsPresent) {
		b.DefaultSampleFlags = r.TryReadUint32()
	}
	return r.TryError
}

/*************************** tfdt ****************************/

// Tfdt is ISOBMFF tfdt box type.
type Tfdt struct {
	FullBox
	BaseMediaDecodeTime uint64
}

// Unmarshal box from reader.
func (b *Tfdt) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		b.BaseMediaDecodeTime = r.TryReadUint64()
	} else {
		b.BaseMediaDecodeTime = uint64(r.TryReadUint32())
	}
	return r.TryError
}

/*************************** trun ****************************/

// Trun is ISOBMFF trun box type.
type Trun struct {
	FullBox
	SampleCount uint32

	// optional fields
	DataOffset       int32
	FirstSampleFlags uint32
	Entries          []TrunEntry
}

// TrunEntry holds the per-sample fields of one track-run entry. The
// composition offset is sign-corrected at parse time for version 1.
type TrunEntry struct {
	SampleDuration              uint32
	SampleSize                  uint32
	SampleFlags                 uint32
	SampleCompositionTimeOffset int64
}

// trun flags.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunFirstSampleFlagsPresent            = 0x000004
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// Unmarshal box from reader.
func (b *Trun) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	b.SampleCount = r.TryReadUint32()
	if b.CheckFlag(TrunDataOffsetPresent) {
		b.DataOffset = r.TryReadInt32()
	}
	if b.CheckFlag(TrunFirstSampleFlagsPresent) {
		b.FirstSampleFlags = r.TryReadUint32()
	}
	if r.TryError != nil {
		return r.TryError
	}

	entrySize := 0
	for _, f := range []uint32{
		TrunSampleDurationPresent, TrunSampleSizePresent,
		TrunSampleFlagsPresent, TrunSampleCompositionTimeOffsetPresent,
	} {
		if b.CheckFlag(f) {
			entrySize += 4
		}
	}
	if entrySize == 0 {
		// Every per-sample field comes from the defaults; only the
		// count is kept and nothing is materialized here.
		return r.TryError
	}
	if err := entryCountGuard(r, b.SampleCount, entrySize); err != nil {
		return err
	}

	b.Entries = make([]TrunEntry, 0, b.SampleCount)
	for i := uint32(0); i < b.SampleCount; i++ {
		var e TrunEntry
		if b.CheckFlag(TrunSampleDurationPresent) {
			e.SampleDuration = r.TryReadUint32()
		}
		if b.CheckFlag(TrunSampleSizePresent) {
			e.SampleSize = r.TryReadUint32()
		}
		if b.CheckFlag(TrunSampleFlagsPresent) {
			e.SampleFlags = r.TryReadUint32()
		}
		if b.CheckFlag(TrunSampleCompositionTimeOffsetPresent) {
			if b.Version == 0 {
				e.SampleCompositionTimeOffset = int64(r.TryReadUint32())
			} else {
				e.SampleCompositionTimeOffset = int64(r.TryReadInt32())
			}
		}
		b.Entries = append(b.Entries, e)
	}
	return r.TryError
}

/*************************** emsg ****************************/

// Emsg is the DASH event message box.
type Emsg struct {
	FullBox
	SchemeIDURI           string
	Value                 string
	Timescale             uint32
	PresentationTime      uint64 // version 1
	PresentationTimeDelta uint32 // version 0
	EventDuration         uint32
	ID                    uint32
	MessageData           []byte
}

func readCString(r *Reader) string {
	var s []byte
	for r.TryError == nil && r.Remaining() > 0 {
		c := r.TryReadByte()
		if c == 0 {
			break
		}
		s = append(s, c)
	}
	return string(s)
}

// Unmarshal box from reader.
func (b *Emsg) Unmarshal(r *Reader) error {
	if err := b.UnmarshalField(r); err != nil {
		return err
	}
	if b.Version == 1 {
		b.Timescale = r.TryReadUint32()
		b.PresentationTime = r.TryReadUint64()
		b.EventDuration = r.TryReadUint32()
		b.ID = r.TryReadUint32()
		b.SchemeIDURI = readCString(r)
		b.Value = readCString(r)
	} else {
		b.SchemeIDURI = readCString(r)
		b.Value = readCString(r)
		b.Timescale = r.TryReadUint32()
		b.PresentationTimeDelta = r.TryReadUint32()
		b.EventDuration = r.TryReadUint32()
		b.ID = r.TryReadUint32()
	}
	if r.TryError != nil {
		return r.TryError
	}
	b.MessageData = r.TryReadBytes(r.Remaining())
	return r.TryError
}
