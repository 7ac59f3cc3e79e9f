package remux

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/isobmff"
	"github.com/jmylchreest/flvtransmux/internal/seekindex"
)

// stripLengthPrefix drops the AVCC length header from a wire-form NALU,
// returning the raw NAL unit isobmff.NewVideoSample (fmp4.Sample.FillH264)
// expects.
func stripLengthPrefix(data []byte, lengthSize int) []byte {
	if lengthSize <= 0 || lengthSize >= len(data) {
		return data
	}
	return data[lengthSize:]
}

// emitVideo corrects one video batch and, if it produced anything to emit,
// builds and dispatches its moof+mdat (spec §4.4 "Segment emission").
func (r *Remuxer) emitVideo(samples []flv.VideoSample, force bool) error {
	emit, ok := r.correctVideoBatch(samples, force)
	if !ok {
		return nil
	}

	fmp4Samples := make([]*fmp4.Sample, len(emit))
	var syncPoints []seekindex.SyncPoint
	for i, s := range emit {
		nalus := make([][]byte, len(s.NALUs))
		for j, n := range s.NALUs {
			nalus[j] = stripLengthPrefix(n.Data, r.videoNALULength)
		}
		sample, err := isobmff.NewVideoSample(s.Duration, int32(s.PTS-s.DTS), s.IsKeyframe, nalus)
		if err != nil {
			return illegalState("building video sample: %v", err)
		}
		fmp4Samples[i] = sample

		if s.IsKeyframe {
			syncPoints = append(syncPoints, seekindex.SyncPoint{DTS: s.DTS, PTS: s.PTS, FilePosition: s.FilePosition})
		}
	}

	first, last := emit[0], emit[len(emit)-1]
	info := seekindex.MediaSegmentInfo{
		BeginDTS:         first.DTS,
		EndDTS:           last.DTS + int64(last.Duration),
		BeginPTS:         first.PTS,
		EndPTS:           last.PTS,
		OriginalBeginDTS: first.OriginalDTS,
		OriginalEndDTS:   last.OriginalDTS + int64(last.Duration),
		FirstSample:      seekindex.SyncPoint{DTS: first.DTS, PTS: first.PTS, FilePosition: first.FilePosition},
		LastSample:       seekindex.SyncPoint{DTS: last.DTS, PTS: last.PTS, FilePosition: last.FilePosition},
		SyncPoints:       syncPoints,
	}

	data, err := isobmff.GenerateMediaSegment(r.video.sequenceNumber, []isobmff.TrackFragment{{
		TrackID:  isobmff.VideoTrackID,
		BaseTime: uint64(first.DTS),
		Samples:  fmp4Samples,
	}})
	if err != nil {
		return illegalState("generating video media segment: %v", err)
	}
	r.video.sequenceNumber++

	if !r.isLive {
		r.video.segments.Insert(info)
	}

	endDTS := info.EndDTS
	r.video.nextDTS = &endDTS
	r.video.lastDuration = last.Duration

	if !r.haveVideoBegin || r.afterSeek {
		r.videoSegmentBegin = first.DTS
		r.haveVideoBegin = true
	}

	if r.OnMediaSegment != nil {
		return r.OnMediaSegment(MediaSegment{Type: "video", Data: data, SampleCount: len(emit), Info: info})
	}
	return nil
}

// emitAudio mirrors emitVideo for the audio track, additionally applying
// AAC gap fill and seek-start padding before building the fragment.
func (r *Remuxer) emitAudio(samples []flv.AudioSample, force bool) error {
	emit, ok := r.correctAudioBatch(samples, force)
	if !ok {
		return nil
	}

	emit = fillAudioGaps(emit, r.audioRefDuration, r.audioChannels, r.cfg.FixAudioTimestampGap, r.audioIsAAC)

	if r.afterSeek && r.haveVideoBegin && len(emit) > 0 {
		if pad, ok := seekStartAudioPad(emit[0].DTS, r.videoSegmentBegin, r.audioChannels, emit[0].Unit, r.audioIsAAC); ok {
			emit = append([]flv.AudioSample{pad}, emit...)
		}
		r.afterSeek = false
	}

	fmp4Samples := make([]*fmp4.Sample, len(emit))
	for i, s := range emit {
		fmp4Samples[i] = isobmff.NewAudioSample(s.Duration, s.Unit)
	}

	first, last := emit[0], emit[len(emit)-1]
	info := seekindex.MediaSegmentInfo{
		BeginDTS:         first.DTS,
		EndDTS:           last.DTS + int64(last.Duration),
		BeginPTS:         first.PTS,
		EndPTS:           last.PTS,
		OriginalBeginDTS: first.OriginalDTS,
		OriginalEndDTS:   last.OriginalDTS + int64(last.Duration),
		FirstSample:      seekindex.SyncPoint{DTS: first.DTS, PTS: first.PTS, FilePosition: -1},
		LastSample:       seekindex.SyncPoint{DTS: last.DTS, PTS: last.PTS, FilePosition: -1},
	}

	data, err := isobmff.GenerateMediaSegment(r.audio.sequenceNumber, []isobmff.TrackFragment{{
		TrackID:  isobmff.AudioTrackID,
		BaseTime: uint64(first.DTS),
		Samples:  fmp4Samples,
	}})
	if err != nil {
		return illegalState("generating audio media segment: %v", err)
	}
	r.audio.sequenceNumber++

	if !r.isLive {
		r.audio.segments.Insert(info)
	}

	endDTS := info.EndDTS
	r.audio.nextDTS = &endDTS
	r.audio.lastDuration = last.Duration

	if r.OnMediaSegment != nil {
		return r.OnMediaSegment(MediaSegment{Type: "audio", Data: data, SampleCount: len(emit), Info: info})
	}
	return nil
}
