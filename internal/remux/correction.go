package remux

import "github.com/jmylchreest/flvtransmux/internal/seekindex"

// correctionState is the per-track DTS-correction bookkeeping shared by the
// audio and video remux passes (spec §4.4 "Per-track DTS correction",
// "Sample duration").
type correctionState struct {
	// nextDTS is the last emitted end-DTS for the track; nil until the
	// first segment has been emitted (or after a seek clears it).
	nextDTS *int64
	// lastDuration is the most recently emitted sample's duration, used as
	// the second-tier fallback when interpolation has no "next" sample.
	lastDuration uint32
	// segments is this track's originalBeginDTS-ordered segment history.
	segments *seekindex.MediaSegmentInfoList
	// sequenceNumber is this track's moof sequence_number, incremented on
	// every emitted segment.
	sequenceNumber uint32
}

// reset clears correction state on player-level seek (spec §4.5 "remuxer
// seek(dts) clears both stashed samples and segment-info lists").
func (s *correctionState) reset() {
	s.nextDTS = nil
	s.lastDuration = 0
	s.segments.Reset()
}

// fallbackDuration returns the duration to use for a sample that has no
// following sample to interpolate against (spec §4.4 "else the previous
// sample's duration, else floor(refSampleDuration)").
func (s *correctionState) fallbackDuration(refSampleDuration float64) uint32 {
	if s.lastDuration > 0 {
		return s.lastDuration
	}
	return uint32(refSampleDuration)
}

// computeCorrection derives the DTS correction to apply to every sample in
// an incoming batch (spec §4.4 "Per-track DTS correction"). firstOriginal
// is the batch's first sample's OriginalDTS, already translated by dtsBase.
func computeCorrection(s *correctionState, firstOriginal int64, timescale uint32) int64 {
	if s.nextDTS != nil {
		return firstOriginal - *s.nextDTS
	}

	last, ok := s.segments.Last()
	if !ok {
		return 0
	}

	distance := firstOriginal - last.OriginalEndDTS
	threeMs := int64(3 * float64(timescale) / 1000.0)
	if distance < 0 {
		if -distance <= threeMs {
			distance = 0
		}
	} else if distance <= threeMs {
		distance = 0
	}

	expectedDTS := last.EndDTS + distance
	return firstOriginal - expectedDTS
}

// interpolateDurations fills durations[0:len-1] from already-corrected,
// non-decreasing dts values (spec §4.4 "for each sample except the last in
// the batch, duration = next.dts - current.dts"). The trailing entry is
// left zero for the caller to resolve via the stash/fallback chain.
func interpolateDurations(dts []int64) []uint32 {
	durations := make([]uint32, len(dts))
	for i := 0; i < len(dts)-1; i++ {
		durations[i] = uint32(dts[i+1] - dts[i])
	}
	return durations
}
