package remux

import (
	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/seekindex"
)

// videoState tracks DTS-correction bookkeeping and the stashed trailing
// sample for the video track.
type videoState struct {
	correctionState
	stashed *flv.VideoSample
}

func newVideoState() *videoState {
	return &videoState{correctionState: correctionState{segments: seekindex.NewMediaSegmentInfoList()}}
}

// correctVideoBatch mirrors correctAudioBatch for the video track, also
// recomputing PTS = DTS + CTS for every sample once DTS correction has been
// applied (video CTS is untouched by correction — only the DTS shifts).
func (r *Remuxer) correctVideoBatch(newSamples []flv.VideoSample, force bool) ([]flv.VideoSample, bool) {
	st := r.video

	// Translate each raw sample's OriginalDTS by dtsBase exactly once, here,
	// before it can ever be stashed — a sample re-entering all on the next
	// call via st.stashed must not be translated a second time.
	translated := make([]flv.VideoSample, len(newSamples))
	copy(translated, newSamples)
	for i := range translated {
		translated[i].OriginalDTS -= r.dtsBase
	}

	all := make([]flv.VideoSample, 0, len(translated)+1)
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

	correction := computeCorrection(&st.correctionState, all[0].OriginalDTS, r.videoTimescale)

	dts := make([]int64, len(all))
	for i := range all {
		all[i].DTS = all[i].OriginalDTS - correction
		all[i].PTS = all[i].DTS + int64(all[i].CTS)
		dts[i] = all[i].DTS
	}
	durations := interpolateDurations(dts)
	// interpolateDurations always leaves the final entry zero; its actual
	// duration is filled in by the stash/fallback handling below.
	for i := 0; i < len(durations)-1; i++ {
		all[i].Duration = durations[i]
	}

	var emit []flv.VideoSample
	if force {
		last := &all[len(all)-1]
		if last.Duration == 0 {
			last.Duration = st.fallbackDuration(r.videoRefDuration)
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

	if r.cfg.ForceKeyframeOnDiscontinuity {
		emit[0].IsKeyframe = true
	}

	return emit, true
}
