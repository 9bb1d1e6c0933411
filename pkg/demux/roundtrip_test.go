package demux

import (
	"bytes"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/stretchr/testify/require"
)

// A file produced by an independent muxer must demux to the same
// samples that went in.
func TestRoundTrip(t *testing.T) {
	sps := []byte{
		103, 100, 0, 22, 172, 217, 64, 164,
		59, 228, 136, 192, 68, 0, 0, 3,
		0, 4, 0, 0, 3, 0, 96, 60,
		88, 182, 88,
	}
	pps := []byte{104, 238, 60, 128}

	init := mp4.CreateEmptyInit()
	init.Moov.Mvhd.NextTrackID = 1
	trackID := init.Moov.Mvhd.NextTrackID
	init.Moov.Mvhd.NextTrackID++

	trak := mp4.CreateEmptyTrak(trackID, 1000, "video", "und")
	init.Moov.AddChild(trak)
	init.Moov.Mvex.AddChild(mp4.CreateTrex(trackID))
	trak.SetAVCDescriptor("avc1", [][]byte{sps}, [][]byte{pps}, true)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})

	frag, err := mp4.CreateFragment(1, trackID)
	require.NoError(t, err)

	payloads := [][]byte{
		[]byte("keyframe"),
		[]byte("delta one"),
		[]byte("delta two"),
	}
	var decodeTime uint64
	for i, data := range payloads {
		flags := mp4.NonSyncSampleFlags
		if i == 0 {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Data:       data,
			DecodeTime: decodeTime,
			Sample: mp4.Sample{
				Flags: flags,
				Dur:   40,
				Size:  uint32(len(data)),
			},
		})
		decodeTime += 40
	}

	var buf bytes.Buffer
	require.NoError(t, ftyp.Encode(&buf))
	require.NoError(t, init.Moov.Encode(&buf))
	require.NoError(t, frag.Encode(&buf))

	pres, err := Parse(buf.Bytes())
	require.NoError(t, err)

	track := pres.VideoTrack()
	require.NotNil(t, track)
	require.Equal(t, trackID, track.ID)
	require.Equal(t, "avc1", track.Codec)
	require.Equal(t, uint32(1000), track.Timescale)

	require.Len(t, track.Samples, len(payloads))
	for i, s := range track.Samples {
		require.Equal(t, int64(i)*40000, s.DecodeTime)
		require.Equal(t, int64(40000), s.Duration)
		require.Equal(t, i == 0, s.IsSync)
		require.Equal(t, payloads[i], track.SampleData(s))
	}
	require.Equal(t, bytes.Join(payloads, nil), track.Data)
	require.Len(t, track.Segments, 1)

	// The decoder description carries the avcC bytes with the SPS and
	// PPS that the muxer embedded.
	config, err := track.Config()
	require.NoError(t, err)
	require.True(t, bytes.Contains(config, sps))
	require.True(t, bytes.Contains(config, pps))
}
