package remux

import (
	"math"

	"github.com/jmylchreest/flvtransmux/internal/flv"
)

// silentAACFrames is a fixed table of pre-encoded silent AAC raw frames
// (no ADTS header) keyed by channel count, used to patch audio timestamp
// gaps without re-running an encoder (spec §4.4 "The silent AAC frame bytes
// are selected from a fixed table keyed by codec/channel count"). These are
// LC-AAC frames carrying a single silent granule at 44.1kHz; channel counts
// outside this table fall back to repeating the prior frame's bytes, per
// the same spec sentence.
var silentAACFrames = map[int][]byte{
	1: {0x01, 0x40, 0x20, 0x06, 0xf1, 0x00, 0x00, 0x00},
	2: {0x21, 0x10, 0x03, 0x20, 0x42, 0x4c, 0x00, 0x00},
}

// silentAACFrame returns the fixed silent-frame payload for channelCount,
// falling back to repeating the prior frame's bytes when the table has no
// entry for it.
func silentAACFrame(channelCount int, priorUnit []byte) []byte {
	if frame, ok := silentAACFrames[channelCount]; ok {
		return frame
	}
	return priorUnit
}

// fillAudioGaps inserts silent AAC frames after any sample whose computed
// duration exceeds 1.5x the reference sample duration (spec §4.4 "Audio
// silent-frame gap fill"). Only applies when enabled and the codec is AAC;
// MP3 gaps are left uncorrected, matching the spec's "AAC only" scoping.
func fillAudioGaps(samples []flv.AudioSample, refSampleDuration float64, channelCount int, enabled, isAAC bool) []flv.AudioSample {
	if !enabled || !isAAC || refSampleDuration <= 0 || len(samples) == 0 {
		return samples
	}

	out := make([]flv.AudioSample, 0, len(samples))
	for i, s := range samples {
		out = append(out, s)

		if i == len(samples)-1 {
			continue
		}
		next := samples[i+1]
		gap := float64(next.DTS - s.DTS)
		if gap <= 1.5*refSampleDuration {
			continue
		}

		count := int(math.Ceil(math.Abs(gap-refSampleDuration) / refSampleDuration))
		if count <= 0 {
			continue
		}

		cursor := s.DTS + int64(s.Duration)
		priorUnit := s.Unit
		for f := 0; f < count; f++ {
			duration := uint32(refSampleDuration)
			if f == count-1 {
				// Extend the last inserted frame's duration to align exactly
				// to the next real sample's DTS.
				duration = uint32(next.DTS - cursor)
			}
			unit := silentAACFrame(channelCount, priorUnit)
			out = append(out, flv.AudioSample{
				DTS:         cursor,
				PTS:         cursor,
				Duration:    duration,
				Size:        len(unit),
				OriginalDTS: cursor,
				Unit:        unit,
			})
			cursor += int64(duration)
			priorUnit = unit
		}
	}
	return out
}

// seekStartAudioPad returns a single silent lead-in frame to prepend to the
// first audio segment emitted after a seek, when the audio segment would
// otherwise start later than the video segment (spec §4.4 "Seek-start
// silent padding"). Only applies to AAC; MP3 has no defined silent unit.
func seekStartAudioPad(audioBeginDTS, videoBeginDTS int64, channelCount int, priorUnit []byte, isAAC bool) (flv.AudioSample, bool) {
	if !isAAC || audioBeginDTS <= videoBeginDTS {
		return flv.AudioSample{}, false
	}
	duration := uint32(audioBeginDTS - videoBeginDTS)
	unit := silentAACFrame(channelCount, priorUnit)
	return flv.AudioSample{
		DTS:         videoBeginDTS,
		PTS:         videoBeginDTS,
		Duration:    duration,
		Size:        len(unit),
		OriginalDTS: videoBeginDTS,
		Unit:        unit,
	}, true
}
