package remux

import (
	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/seekindex"
)

// audioState tracks DTS-correction bookkeeping and the stashed trailing
// sample for the audio track (spec §4.4 "stash the trailing sample of each
// batch until the next batch to compute its duration").
type audioState struct {
	correctionState
	stashed *flv.AudioSample
}

func newAudioState() *audioState {
	return &audioState{correctionState: correctionState{segments: seekindex.NewMediaSegmentInfoList()}}
}

// correctAudioBatch prepends any sample stashed from the previous call,
// applies the dtsBase translation and per-track DTS correction, and
// interpolates per-sample durations (spec §4.4 "Sample duration"). It
// returns the samples ready to emit and true, or nil and false when the
// batch-minimum rule holds everything back (spec §4.4 "Batch minimum").
func (r *Remuxer) correctAudioBatch(newSamples []flv.AudioSample, force bool) ([]flv.AudioSample, bool) {
	st := r.audio

	// Translate each raw sample's OriginalDTS by dtsBase exactly once, here,
	// before it can ever be stashed — a sample re-entering all on the next
	// call via st.stashed must not be translated a second time.
	translated := make([]flv.AudioSample, len(newSamples))
	copy(translated, newSamples)
	for i := range translated {
		translated[i].OriginalDTS -= r.dtsBase
	}

	all := make([]flv.AudioSample, 0, len(translated)+1)
	if st.stashed != nil {
		all = append(all, *st.stashed)
		st.stashed = nil
	}
	all = append(all, translated...)

	if len(all) == 0 {
		return nil, false
	}
	if len(all) < 2 && !force {
		st.stashed = &all[0]
		return nil, false
	}

	correction := computeCorrection(&st.correctionState, all[0].OriginalDTS, r.audioTimescale)

	dts := make([]int64, len(all))
	for i := range all {
		all[i].DTS = all[i].OriginalDTS - correction
		all[i].PTS = all[i].DTS
		dts[i] = all[i].DTS
	}
	durations := interpolateDurations(dts)
	// interpolateDurations always leaves the final entry zero; its actual
	// duration is filled in by the stash/fallback handling below.
	for i := 0; i < len(durations)-1; i++ {
		all[i].Duration = durations[i]
	}

	var emit []flv.AudioSample
	if force {
		last := &all[len(all)-1]
		if last.Duration == 0 {
			last.Duration = st.fallbackDuration(r.audioRefDuration)
		}
		emit = all
	} else {
		trailing := all[len(all)-1]
		st.stashed = &trailing
		emit = all[:len(all)-1]
	}

	if len(emit) == 0 {
		return nil, false
	}
	return emit, true
}
