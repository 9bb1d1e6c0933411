package demux

import (
	"fmt"

	"mp4demux/pkg/mp4"
)

// sample_is_non_sync_sample bit of the ISO sample flags.
const sampleFlagNonSync = 0x00010000

// fragState carries per-track continuity across movie fragments:
// the next decode timestamp and the file position one past the last
// merged sample.
type fragState struct {
	merged  bool
	started bool
	dtsNext int64
	lastEnd int64
}

// trafSource decodes one track fragment into raw sample records.
// Fragments of a track share a fragState so runs without an explicit
// data offset continue where the previous run ended.
type trafSource struct {
	moofStart int64
	srcSize   int
	tfhd      *mp4.Tfhd
	tfdt      *mp4.Tfdt
	truns     []*mp4.Trun
	trex      *mp4.Trex
	state     *fragState
}

func newTrafSource(moof, traf *mp4.Box, trex *mp4.Trex, state *fragState, srcSize int) *trafSource {
	s := &trafSource{
		moofStart: int64(moof.Start),
		srcSize:   srcSize,
		tfhd:      traf.Child(mp4.TypeTfhd).Tfhd,
		trex:      trex,
		state:     state,
	}
	if b := traf.Child(mp4.TypeTfdt); b != nil {
		s.tfdt = b.Tfdt
	}
	for _, b := range traf.ChildAll(mp4.TypeTrun) {
		if b.Trun != nil {
			s.truns = append(s.truns, b.Trun)
		}
	}
	return s
}

// defaults resolves the per-fragment sample defaults, tfhd first, then
// the trex declared in the movie box.
func (s *trafSource) defaults() (dur, size, flags uint32) {
	if s.trex != nil {
		dur = s.trex.DefaultSampleDuration
		size = s.trex.DefaultSampleSize
		flags = s.trex.DefaultSampleFlags
	}
	if s.tfhd.CheckFlag(mp4.TfhdDefaultSampleDurationPresent) {
		dur = s.tfhd.DefaultSampleDuration
	}
	if s.tfhd.CheckFlag(mp4.TfhdDefaultSampleSizePresent) {
		size = s.tfhd.DefaultSampleSize
	}
	if s.tfhd.CheckFlag(mp4.TfhdDefaultSampleFlagsPresent) {
		flags = s.tfhd.DefaultSampleFlags
	}
	return dur, size, flags
}

func (s *trafSource) appendSamples(dst []rawSample) ([]rawSample, error) {
	base := s.moofStart
	if s.tfhd.CheckFlag(mp4.TfhdBaseDataOffsetPresent) {
		var err error
		base, err = int64From(s.tfhd.BaseDataOffset)
		if err != nil {
			return nil, err
		}
	}

	// Decode time of the first merged fragment comes from tfdt when
	// present; later fragments continue from the previous sample.
	if !s.state.merged {
		if n := len(dst); n > 0 {
			var err error
			s.state.dtsNext, err = safeAdd(dst[n-1].dts, dst[n-1].dur)
			if err != nil {
				return nil, err
			}
		}
		if s.tfdt != nil {
			var err error
			s.state.dtsNext, err = int64From(s.tfdt.BaseMediaDecodeTime)
			if err != nil {
				return nil, err
			}
		}
		s.state.merged = true
	}

	defDur, defSize, defFlags := s.defaults()

	for runIdx, trun := range s.truns {
		pos := s.state.lastEnd
		switch {
		case trun.CheckFlag(mp4.TrunDataOffsetPresent):
			// data_offset is signed; a negative value addresses
			// media bytes before the fragment anchor.
			var err error
			pos, err = safeAdd(base, int64(trun.DataOffset))
			if err != nil {
				return nil, err
			}
		case runIdx == 0 && !s.state.started:
			pos = base
		}

		// A run cannot index more samples than there are bytes in the
		// source; reject the count before expanding it.
		if int64(trun.SampleCount) > int64(s.srcSize)-int64(len(dst)) {
			return nil, fmt.Errorf("trun sample count %d exceeds source size: %w",
				trun.SampleCount, mp4.ErrInvalidBoxSize)
		}

		for i := 0; i < int(trun.SampleCount); i++ {
			flags := defFlags
			if trun.CheckFlag(mp4.TrunSampleFlagsPresent) {
				flags = trun.Entries[i].SampleFlags
			} else if i == 0 && trun.CheckFlag(mp4.TrunFirstSampleFlagsPresent) {
				flags = trun.FirstSampleFlags
			}

			dur := int64(defDur)
			if trun.CheckFlag(mp4.TrunSampleDurationPresent) {
				dur = int64(trun.Entries[i].SampleDuration)
			}
			size := defSize
			if trun.CheckFlag(mp4.TrunSampleSizePresent) {
				size = trun.Entries[i].SampleSize
			}
			var cts int64
			if trun.CheckFlag(mp4.TrunSampleCompositionTimeOffsetPresent) {
				cts = trun.Entries[i].SampleCompositionTimeOffset
			}

			if pos < 0 {
				return nil, fmt.Errorf("sample data offset %d: %w", pos, ErrOverflow)
			}

			dst = append(dst, rawSample{
				offset: pos,
				size:   size,
				dts:    s.state.dtsNext,
				dur:    dur,
				cts:    cts,
				sync:   flags&sampleFlagNonSync == 0,
			})

			var err error
			pos, err = safeAdd(pos, int64(size))
			if err != nil {
				return nil, err
			}
			s.state.dtsNext, err = safeAdd(s.state.dtsNext, dur)
			if err != nil {
				return nil, err
			}
		}

		s.state.lastEnd = pos
		s.state.started = true
	}

	return dst, nil
}
