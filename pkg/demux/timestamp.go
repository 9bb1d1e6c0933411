package demux

import (
	"fmt"
	"math"
	"math/bits"
)

const microsPerSecond = 1000000

// scaleTicks converts a tick count at the given timescale to
// microseconds, truncating toward zero. The multiply runs in 128 bits so
// large tick counts and legitimate negative offsets never wrap silently.
func scaleTicks(ticks int64, timescale uint32) (int64, error) {
	neg := ticks < 0
	u := uint64(ticks)
	if neg {
		u = -u
	}

	hi, lo := bits.Mul64(u, microsPerSecond)
	if hi >= uint64(timescale) {
		return 0, fmt.Errorf("%d ticks at timescale %d: %w", ticks, timescale, ErrOverflow)
	}
	q, _ := bits.Div64(hi, lo, uint64(timescale))

	if neg {
		if q > 1<<63 {
			return 0, fmt.Errorf("%d ticks at timescale %d: %w", ticks, timescale, ErrOverflow)
		}
		return -int64(q), nil
	}
	if q > math.MaxInt64 {
		return 0, fmt.Errorf("%d ticks at timescale %d: %w", ticks, timescale, ErrOverflow)
	}
	return int64(q), nil
}

// normalize scales one track's raw tick values to microseconds and, in a
// single whole-track pass, shifts every timestamp so the earliest
// presentation timestamp becomes zero.
func normalize(raw []rawSample, timescale uint32) ([]Sample, error) {
	samples := make([]Sample, len(raw))
	minPres := int64(math.MaxInt64)

	for i := range raw {
		dts, err := scaleTicks(raw[i].dts, timescale)
		if err != nil {
			return nil, err
		}
		presTicks, err := safeAdd(raw[i].dts, raw[i].cts)
		if err != nil {
			return nil, err
		}
		pres, err := scaleTicks(presTicks, timescale)
		if err != nil {
			return nil, err
		}
		dur, err := scaleTicks(raw[i].dur, timescale)
		if err != nil {
			return nil, err
		}

		samples[i] = Sample{
			Index:      i,
			IsSync:     raw[i].sync,
			DecodeTime: dts,
			PresTime:   pres,
			Duration:   dur,
		}
		if pres < minPres {
			minPres = pres
		}
	}

	if len(samples) == 0 || minPres == 0 {
		return samples, nil
	}
	if minPres == math.MinInt64 {
		return nil, fmt.Errorf("presentation shift: %w", ErrOverflow)
	}
	for i := range samples {
		var err error
		samples[i].PresTime, err = safeAdd(samples[i].PresTime, -minPres)
		if err != nil {
			return nil, err
		}
		samples[i].DecodeTime, err = safeAdd(samples[i].DecodeTime, -minPres)
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}
