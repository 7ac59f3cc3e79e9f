package isobmff

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
)

// NewVideoSample builds one fragment sample from an access unit of raw
// (non-Annex-B) H.264 NAL units, letting fmp4.Sample.FillH264 handle the
// Annex-B re-encoding and per-sample size bookkeeping.
func NewVideoSample(duration uint32, ptsOffset int32, isKeyframe bool, nalus [][]byte) (*fmp4.Sample, error) {
	sample := &fmp4.Sample{
		Duration:        duration,
		PTSOffset:       ptsOffset,
		IsNonSyncSample: !isKeyframe,
	}
	if err := sample.FillH264(ptsOffset, nalus); err != nil {
		return nil, err
	}
	return sample, nil
}

// NewAudioSample builds one fragment sample from a raw AAC or MP3 frame
// payload (no ADTS/MPEG header re-wrapping — fMP4 carries the bare frame).
func NewAudioSample(duration uint32, payload []byte) *fmp4.Sample {
	return &fmp4.Sample{
		Duration:        duration,
		IsNonSyncSample: false,
		Payload:         payload,
	}
}

// TrackFragment batches one track's samples for one moof/mdat, alongside its
// running base media decode time in the track's own timescale.
type TrackFragment struct {
	TrackID  int
	BaseTime uint64
	Samples  []*fmp4.Sample
}

// GenerateMediaSegment builds moof+mdat for a sequence number's batch of
// track fragments, per spec §4.4 "Emit moof(track, firstDts) || mdat".
func GenerateMediaSegment(sequenceNumber uint32, tracks []TrackFragment) ([]byte, error) {
	part := &fmp4.Part{SequenceNumber: sequenceNumber}
	for _, t := range tracks {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       t.TrackID,
			BaseTime: t.BaseTime,
			Samples:  t.Samples,
		})
	}
	return marshalToBytes(part)
}
