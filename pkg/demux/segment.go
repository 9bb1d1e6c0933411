package demux

// buildSegments partitions a decode-ordered sample sequence into closed
// picture groups. A new segment begins at each sync sample; a track that
// begins mid-group yields a tolerated partial leading segment, and a
// track with no sync samples at all yields a single such segment.
func buildSegments(samples []Sample) []Segment {
	var segs []Segment
	for _, s := range samples {
		if s.IsSync || len(segs) == 0 {
			segs = append(segs, Segment{Start: s.PresTime})
		}
		cur := &segs[len(segs)-1]
		cur.Samples = append(cur.Samples, s)
	}
	return segs
}
