package demux

import (
	"testing"

	"mp4demux/pkg/mp4"

	"github.com/stretchr/testify/require"
)

func trexBox(trackID, dur, size, flags uint32) []byte {
	return fullBox("trex", 0, 0,
		u32(trackID),
		u32(1), // default sample description index
		u32(dur),
		u32(size),
		u32(flags),
	)
}

func mfhdBox(seq uint32) []byte {
	return fullBox("mfhd", 0, 0, u32(seq))
}

func tfhdBox(flags, trackID uint32, optional ...[]byte) []byte {
	payload := append([][]byte{u32(trackID)}, optional...)
	return fullBox("tfhd", 0, flags, payload...)
}

func tfdtBox(baseMediaDecodeTime uint64) []byte {
	return fullBox("tfdt", 1, 0, u64(baseMediaDecodeTime))
}

// trunBox builds a version 0 trun. Entries are {duration, size} pairs,
// included according to the flags.
func trunBox(flags uint32, dataOffset int32, firstFlags uint32, entries ...[2]uint32) []byte {
	payload := [][]byte{u32(uint32(len(entries)))}
	if flags&0x000001 != 0 {
		payload = append(payload, u32(uint32(dataOffset)))
	}
	if flags&0x000004 != 0 {
		payload = append(payload, u32(firstFlags))
	}
	for _, e := range entries {
		if flags&0x000100 != 0 {
			payload = append(payload, u32(e[0]))
		}
		if flags&0x000200 != 0 {
			payload = append(payload, u32(e[1]))
		}
	}
	return fullBox("trun", 0, flags, payload...)
}

// nonSync is the sample_is_non_sync_sample bit.
const nonSync = uint32(0x00010000)

func fragMoov(trackID uint32, mdhdDur uint32, trexFlags uint32) []byte {
	trak := videoTrak(trackID,
		mdhdBox(1000, mdhdDur),
		videoSampleEntry("avc1", box("avcC", testAvcC)),
	)
	return box("moov",
		mvhdBox(1000),
		trak,
		box("mvex", trexBox(trackID, 0, 0, trexFlags)),
	)
}

func TestParseFragmented(t *testing.T) {
	// Two movie fragments. The first carries a tfdt and three samples,
	// the second has no tfdt and must continue from the previous
	// decode time.
	const trunFlags = 0x000001 | 0x000004 | 0x000100 | 0x000200

	moov := fragMoov(1, 0, nonSync)

	makeMoof := func(seq uint32, withTfdt bool, offset int32, entries ...[2]uint32) []byte {
		var traf [][]byte
		traf = append(traf, tfhdBox(0, 1))
		if withTfdt {
			traf = append(traf, tfdtBox(0))
		}
		traf = append(traf, trunBox(trunFlags, offset, 0, entries...))
		return box("moof", mfhdBox(seq), box("traf", traf...))
	}

	frag1 := [][2]uint32{{40, 1}, {40, 2}, {40, 3}}
	frag2 := [][2]uint32{{40, 2}, {40, 2}}

	moof1 := makeMoof(1, true, 0, frag1...)
	moof1 = makeMoof(1, true, int32(len(moof1)+8), frag1...)
	moof2 := makeMoof(2, false, 0, frag2...)
	moof2 = makeMoof(2, false, int32(len(moof2)+8), frag2...)

	var buf []byte
	buf = append(buf, moov...)
	buf = append(buf, moof1...)
	buf = append(buf, box("mdat", []byte("abcdef"))...)
	buf = append(buf, moof2...)
	buf = append(buf, box("mdat", []byte("ghij"))...)

	pres, err := Parse(buf)
	require.NoError(t, err)

	track := pres.VideoTrack()
	require.Len(t, track.Samples, 5)
	require.Equal(t, []byte("abcdefghij"), track.Data)

	for i, s := range track.Samples {
		require.Equal(t, int64(i)*40000, s.DecodeTime)
		require.Equal(t, int64(i)*40000, s.PresTime)
		require.Equal(t, int64(40000), s.Duration)
	}

	// First sample of each fragment overridden to sync by
	// first-sample-flags; the rest inherit the non-sync trex default.
	wantSync := []bool{true, false, false, true, false}
	for i, s := range track.Samples {
		require.Equal(t, wantSync[i], s.IsSync, "sample %d", i)
	}
	require.Len(t, track.Segments, 2)
	require.Equal(t, int64(0), track.Segments[0].Start)
	require.Equal(t, int64(120000), track.Segments[1].Start)

	require.Equal(t, []byte("a"), track.SampleData(track.Samples[0]))
	require.Equal(t, []byte("gh"), track.SampleData(track.Samples[3]))
}

func TestNegativeDataOffset(t *testing.T) {
	// The mdat precedes the moof, addressed with a negative run offset
	// relative to the fragment anchor.
	const trunFlags = 0x000001 | 0x000100 | 0x000200

	payload := []byte("early")
	moov := fragMoov(1, 0, 0)

	moof := box("moof",
		mfhdBox(1),
		box("traf",
			tfhdBox(0, 1),
			tfdtBox(0),
			trunBox(trunFlags, -int32(len(payload)), 0, [2]uint32{40, uint32(len(payload))}),
		),
	)

	var buf []byte
	buf = append(buf, moov...)
	buf = append(buf, box("mdat", payload)...)
	buf = append(buf, moof...)

	pres, err := Parse(buf)
	require.NoError(t, err)

	track := pres.VideoTrack()
	require.Len(t, track.Samples, 1)
	require.Equal(t, payload, track.Data)
	// Without the non-sync bit the sample counts as sync.
	require.True(t, track.Samples[0].IsSync)
}

func TestRunsWithoutDataOffset(t *testing.T) {
	// Runs without an explicit data offset: the first starts at the
	// tfhd base data offset, the second continues where the first ended.
	const trunFlags = 0x000100 | 0x000200

	moov := fragMoov(1, 0, 0)

	makeMoof := func(base uint64) []byte {
		return box("moof",
			mfhdBox(1),
			box("traf",
				tfhdBox(0x000001, 1, u64(base)), // base data offset present
				tfdtBox(0),
				trunBox(trunFlags, 0, 0, [2]uint32{40, 2}, [2]uint32{40, 2}),
				trunBox(trunFlags, 0, 0, [2]uint32{40, 2}),
			),
		)
	}

	payload := []byte("aabbcc")
	build := func(base uint64) []byte {
		var buf []byte
		buf = append(buf, moov...)
		buf = append(buf, makeMoof(base)...)
		buf = append(buf, box("mdat", payload)...)
		return buf
	}
	probe := build(0)
	buf := build(uint64(len(probe) - len(payload)))

	pres, err := Parse(buf)
	require.NoError(t, err)

	track := pres.VideoTrack()
	require.Len(t, track.Samples, 3)
	require.Equal(t, payload, track.Data)
	require.Equal(t, []byte("aa"), track.SampleData(track.Samples[0]))
	require.Equal(t, []byte("cc"), track.SampleData(track.Samples[2]))
	require.Equal(t, int64(80000), track.Samples[2].DecodeTime)
}

func TestTfhdDefaultsOverrideTrex(t *testing.T) {
	// tfhd-declared defaults take precedence over the trex defaults.
	const tfhdFlags = 0x000008 | 0x000010 | 0x000020 // duration, size, flags
	const trunFlags = 0x000001                       // data offset only

	moov := fragMoov(1, 0, nonSync)

	makeMoof := func(offset int32) []byte {
		return box("moof",
			mfhdBox(1),
			box("traf",
				tfhdBox(tfhdFlags, 1,
					u32(100), // default sample duration
					u32(3),   // default sample size
					u32(0),   // default sample flags, sync
				),
				tfdtBox(0),
				trunBox(trunFlags, offset, 0, [2]uint32{}, [2]uint32{}),
			),
		)
	}

	moof := makeMoof(0)
	moof = makeMoof(int32(len(moof) + 8))

	var buf []byte
	buf = append(buf, moov...)
	buf = append(buf, moof...)
	buf = append(buf, box("mdat", []byte("abcdef"))...)

	pres, err := Parse(buf)
	require.NoError(t, err)

	track := pres.VideoTrack()
	require.Len(t, track.Samples, 2)
	for _, s := range track.Samples {
		require.True(t, s.IsSync)
		require.Equal(t, int64(100000), s.Duration)
		require.Equal(t, uint32(3), s.ByteLength)
	}
	require.Equal(t, []byte("abc"), track.SampleData(track.Samples[0]))
	require.Equal(t, []byte("def"), track.SampleData(track.Samples[1]))
}

func TestHugeRunSampleCount(t *testing.T) {
	// A run declaring four billion default-valued samples in a tiny
	// file must fail instead of expanding.
	moov := fragMoov(1, 0, 0)
	trun := fullBox("trun", 0, 0x000001,
		u32(0xffffffff), // sample count
		u32(0),          // data offset
	)
	moof := box("moof",
		mfhdBox(1),
		box("traf", tfhdBox(0, 1), tfdtBox(0), trun),
	)

	var buf []byte
	buf = append(buf, moov...)
	buf = append(buf, moof...)

	_, err := Parse(buf)
	require.ErrorIs(t, err, mp4.ErrInvalidBoxSize)
}

func TestClassicFragmentedEquivalence(t *testing.T) {
	// The same three samples expressed through a classic sample table
	// and through a movie fragment produce identical output.
	classic, _ := classicTestFile()

	const trunFlags = 0x000001 | 0x000004 | 0x000100 | 0x000200
	moov := fragMoov(1, 3000, nonSync)
	makeMoof := func(offset int32) []byte {
		return box("moof",
			mfhdBox(1),
			box("traf",
				tfhdBox(0, 1),
				tfdtBox(0),
				trunBox(trunFlags, offset, 0,
					[2]uint32{1000, 2}, [2]uint32{1000, 3}, [2]uint32{1000, 4}),
			),
		)
	}
	moof := makeMoof(0)
	moof = makeMoof(int32(len(moof) + 8))

	var fragmented []byte
	fragmented = append(fragmented, moov...)
	fragmented = append(fragmented, moof...)
	fragmented = append(fragmented, box("mdat", []byte("abcdefghi"))...)

	presClassic, err := Parse(classic)
	require.NoError(t, err)
	presFragmented, err := Parse(fragmented)
	require.NoError(t, err)

	a := presClassic.VideoTrack()
	b := presFragmented.VideoTrack()
	require.Equal(t, a.Samples, b.Samples)
	require.Equal(t, a.Segments, b.Segments)
	require.Equal(t, a.Data, b.Data)
	require.Equal(t, a.Duration, b.Duration)
}
