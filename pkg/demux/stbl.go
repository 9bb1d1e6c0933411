package demux

import (
	"fmt"
	"math"

	"mp4demux/pkg/mp4"
)

// rawSample is the layout-agnostic per-sample record that both the
// classic sample table and fragmented track runs decode into. The offset
// is an absolute file position; times are in track ticks.
type rawSample struct {
	offset int64
	size   uint32
	dts    int64
	dur    int64
	cts    int64
	sync   bool
}

// sampleSource yields decode-ordered raw sample records. The classic
// sample table and fragmented track runs both implement it, so the
// downstream stages are layout-agnostic.
type sampleSource interface {
	appendSamples(dst []rawSample) ([]rawSample, error)
}

// safeAdd adds two signed 64-bit values, guarding against wraparound.
func safeAdd(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, fmt.Errorf("%d + %d: %w", a, b, ErrOverflow)
	}
	return s, nil
}

func int64From(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("offset %d: %w", v, ErrOverflow)
	}
	return int64(v), nil
}

// stblSource decodes a populated classic sample table.
type stblSource struct {
	mdhd *mp4.Mdhd

	stts *mp4.Stts
	ctts *mp4.Ctts
	stsc *mp4.Stsc
	stss *mp4.Stss

	sizes        func(i int) uint32
	sampleCount  int
	chunkOffsets []int64
}

// newStblSource returns nil for an empty sample table, the layout used
// by fragmented files.
func newStblSource(stbl *mp4.Box, mdhd *mp4.Mdhd, srcSize int) (*stblSource, error) {
	s := &stblSource{mdhd: mdhd}

	if b := stbl.Child(mp4.TypeStts); b != nil {
		s.stts = b.Stts
	}
	if b := stbl.Child(mp4.TypeCtts); b != nil {
		s.ctts = b.Ctts
	}
	if b := stbl.Child(mp4.TypeStsc); b != nil {
		s.stsc = b.Stsc
	}
	if b := stbl.Child(mp4.TypeStss); b != nil {
		s.stss = b.Stss
	}

	switch {
	case stbl.Child(mp4.TypeStsz) != nil:
		stsz := stbl.Child(mp4.TypeStsz).Stsz
		s.sampleCount = int(stsz.SampleCount)
		s.sizes = stsz.EntrySize
	case stbl.Child(mp4.TypeStz2) != nil:
		stz2 := stbl.Child(mp4.TypeStz2).Stz2
		s.sampleCount = len(stz2.Sizes)
		s.sizes = func(i int) uint32 { return stz2.Sizes[i] }
	}
	if s.sampleCount == 0 {
		return nil, nil
	}
	// The constant-size stsz form carries no table to bound the declared
	// count; a track cannot index more samples than the source holds.
	if s.sampleCount > srcSize {
		return nil, fmt.Errorf("sample count %d exceeds source size: %w",
			s.sampleCount, mp4.ErrInvalidBoxSize)
	}

	switch {
	case stbl.Child(mp4.TypeStco) != nil:
		for _, o := range stbl.Child(mp4.TypeStco).Stco.Entries {
			s.chunkOffsets = append(s.chunkOffsets, int64(o))
		}
	case stbl.Child(mp4.TypeCo64) != nil:
		for _, o := range stbl.Child(mp4.TypeCo64).Co64.Entries {
			v, err := int64From(o)
			if err != nil {
				return nil, err
			}
			s.chunkOffsets = append(s.chunkOffsets, v)
		}
	}

	if s.stts == nil || len(s.stts.Entries) == 0 {
		return nil, fmt.Errorf("sample table has no stts: %w", mp4.ErrMissingBox)
	}
	if s.stsc == nil || len(s.stsc.Entries) == 0 {
		return nil, fmt.Errorf("sample table has no stsc: %w", mp4.ErrMissingBox)
	}
	if len(s.chunkOffsets) == 0 {
		return nil, fmt.Errorf("sample table has no chunk offsets: %w", mp4.ErrMissingBox)
	}
	return s, nil
}

func (s *stblSource) appendSamples(dst []rawSample) ([]rawSample, error) {
	var (
		dts int64

		// Time-to-sample run expansion: a run {count, delta} yields
		// exactly count samples each carrying delta.
		sttsRun  int
		sttsLeft uint32

		cttsRun  int
		cttsLeft uint32

		stssIdx int

		// Chunk walk, 1-based chunk numbering.
		chunkIdx       int
		stscRun        int
		lastChunkInRun int
		chunkBase      int64
		withinChunk    int64
		leftInChunk    uint32
	)

	runEnd := func(run int) int {
		if run+1 < len(s.stsc.Entries) {
			return int(s.stsc.Entries[run+1].FirstChunk) - 1
		}
		return math.MaxInt32
	}

	for i := 0; i < s.sampleCount; i++ {
		// Advance to the chunk holding this sample.
		for leftInChunk == 0 {
			if chunkIdx == 0 {
				chunkIdx = 1
				stscRun = 0
				lastChunkInRun = runEnd(0)
			} else {
				chunkIdx++
				if chunkIdx > lastChunkInRun {
					stscRun++
					lastChunkInRun = runEnd(stscRun)
				}
			}
			if chunkIdx > len(s.chunkOffsets) {
				return nil, fmt.Errorf("chunk offset table exhausted at sample %d: %w",
					i, mp4.ErrUnexpectedEOF)
			}
			chunkBase = s.chunkOffsets[chunkIdx-1]
			withinChunk = 0
			leftInChunk = s.stsc.Entries[stscRun].SamplesPerChunk
		}

		size := s.sizes(i)
		offset, err := safeAdd(chunkBase, withinChunk)
		if err != nil {
			return nil, err
		}
		withinChunk += int64(size)
		leftInChunk--

		for sttsLeft == 0 {
			if sttsRun >= len(s.stts.Entries) {
				return nil, fmt.Errorf("time-to-sample table exhausted at sample %d: %w",
					i, mp4.ErrUnexpectedEOF)
			}
			sttsLeft = s.stts.Entries[sttsRun].SampleCount
			sttsRun++
		}
		dur := int64(s.stts.Entries[sttsRun-1].SampleDelta)
		sttsLeft--

		var cts int64
		if s.ctts != nil && len(s.ctts.Entries) > 0 {
			for cttsLeft == 0 {
				if cttsRun >= len(s.ctts.Entries) {
					return nil, fmt.Errorf("composition-offset table exhausted at sample %d: %w",
						i, mp4.ErrUnexpectedEOF)
				}
				cttsLeft = s.ctts.Entries[cttsRun].SampleCount
				cttsRun++
			}
			cts = s.ctts.Entries[cttsRun-1].SampleOffset
			cttsLeft--
		}

		// Absent sync-sample table means every sample is a sync
		// sample (all-intra stream).
		sync := s.stss == nil
		if s.stss != nil {
			if stssIdx < len(s.stss.Entries) && s.stss.Entries[stssIdx] == uint32(i+1) {
				sync = true
				stssIdx++
			}
		}

		dst = append(dst, rawSample{
			offset: offset,
			size:   size,
			dts:    dts,
			dur:    dur,
			cts:    cts,
			sync:   sync,
		})

		dts, err = safeAdd(dts, dur)
		if err != nil {
			return nil, err
		}
	}

	// The final sample's duration runs to the declared track end when
	// the header carries one.
	if s.mdhd.Duration > 0 && len(dst) > 0 {
		last := &dst[len(dst)-1]
		if trackDur, err := int64From(s.mdhd.Duration); err == nil {
			if d := trackDur - last.dts; d >= 0 {
				last.dur = d
			}
		}
	}

	return dst, nil
}
