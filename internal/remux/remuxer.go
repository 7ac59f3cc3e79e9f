// Package remux implements the fMP4 remuxer (spec §4.4): DTS/PTS
// correction relative to a shared dtsBase, per-sample duration
// interpolation with trailing-sample stashing, AAC silent-frame gap fill,
// IDR forcing, and moof/mdat segment emission via internal/isobmff.
package remux

import (
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/isobmff"
	"github.com/jmylchreest/flvtransmux/internal/seekindex"
)

// MediaSegment is one emitted moof+mdat fragment for a single track (spec
// §4.4 "stream MediaSegment{type,data,sampleCount,info} per batch").
type MediaSegment struct {
	Type        string // "audio" or "video"
	Data        []byte
	SampleCount int
	Info        seekindex.MediaSegmentInfo
}

// Remuxer turns demuxed FLV audio/video track batches into fMP4 init and
// media segments. It is not safe for concurrent use — like the rest of the
// pipeline, it is driven from a single cooperative worker (spec §5
// "Scheduling model").
type Remuxer struct {
	cfg    config.WorkaroundConfig
	isLive bool

	videoTimescale uint32
	audioTimescale uint32

	logger *slog.Logger

	haveDTSBase bool
	dtsBase     int64

	video *videoState
	audio *audioState

	videoRefDuration float64
	videoNALULength  int
	audioRefDuration float64
	audioChannels    int
	audioIsAAC       bool

	initEmitted bool
	videoMeta   *isobmff.VideoTrack
	audioMeta   *isobmff.AudioTrack

	afterSeek         bool
	videoSegmentBegin int64
	haveVideoBegin    bool

	// OnInitSegment fires once, the first time both declared tracks' codec
	// metadata is available.
	OnInitSegment func(data []byte) error
	// OnMediaSegment fires once per emitted track fragment.
	OnMediaSegment func(seg MediaSegment) error
}

// NewRemuxer creates a Remuxer for one session.
func NewRemuxer(cfg config.RemuxConfig, workaround config.WorkaroundConfig, logger *slog.Logger) *Remuxer {
	if logger == nil {
		logger = slog.Default()
	}
	videoTimescale := cfg.VideoTimescale
	if videoTimescale == 0 {
		videoTimescale = 1000
	}
	audioTimescale := cfg.AudioTimescale
	if audioTimescale == 0 {
		audioTimescale = 1000
	}
	return &Remuxer{
		cfg:            workaround,
		isLive:         cfg.IsLive,
		videoTimescale: videoTimescale,
		audioTimescale: audioTimescale,
		logger:         logger,
		video:          newVideoState(),
		audio:          newAudioState(),
	}
}

// Feed processes one demuxer batch (spec §4.4, the OnSamplesAvailable
// handoff point). Either track may be nil or empty if the stream declared
// only one media type.
func (r *Remuxer) Feed(audio *flv.AudioTrack, video *flv.VideoTrack) error {
	r.establishDTSBase(audio, video)

	if !r.initEmitted {
		if err := r.maybeEmitInit(audio, video); err != nil {
			return err
		}
	}

	if video != nil && len(video.Samples) > 0 {
		r.videoRefDuration = video.Metadata.RefSampleDuration
		r.videoNALULength = video.Metadata.NALULengthSize
		if err := r.emitVideo(video.Samples, false); err != nil {
			return err
		}
	}
	if audio != nil && len(audio.Samples) > 0 {
		r.audioRefDuration = audio.Metadata.RefSampleDuration
		r.audioChannels = audio.Metadata.ChannelCount
		r.audioIsAAC = audio.Metadata.Codec != "mp3"
		if err := r.emitAudio(audio.Samples, false); err != nil {
			return err
		}
	}

	return nil
}

func (r *Remuxer) establishDTSBase(audio *flv.AudioTrack, video *flv.VideoTrack) {
	if r.haveDTSBase {
		return
	}
	haveAny := false
	minDTS := int64(0)
	if audio != nil && len(audio.Samples) > 0 {
		minDTS = audio.Samples[0].OriginalDTS
		haveAny = true
	}
	if video != nil && len(video.Samples) > 0 {
		if !haveAny || video.Samples[0].OriginalDTS < minDTS {
			minDTS = video.Samples[0].OriginalDTS
		}
		haveAny = true
	}
	if haveAny {
		r.dtsBase = minDTS
		r.haveDTSBase = true
	}
}

func (r *Remuxer) maybeEmitInit(audio *flv.AudioTrack, video *flv.VideoTrack) error {
	var videoTrack *isobmff.VideoTrack
	var audioTrack *isobmff.AudioTrack

	if video != nil && video.Metadata.Present {
		videoTrack = &isobmff.VideoTrack{
			Timescale: r.videoTimescale,
			SPS:       video.Metadata.SPS,
			PPS:       video.Metadata.PPS,
		}
	}
	if audio != nil && audio.Metadata.Present {
		t, err := r.buildAudioTrack(audio.Metadata)
		if err != nil {
			return illegalState("building audio init track: %v", err)
		}
		audioTrack = t
	}

	// Wait until every declared track (one with any samples queued, or
	// whose metadata has already arrived) is ready before emitting — a
	// stream missing one track entirely never blocks the other's init.
	if video != nil && !video.Metadata.Present {
		return nil
	}
	if audio != nil && !audio.Metadata.Present {
		return nil
	}
	if videoTrack == nil && audioTrack == nil {
		return nil
	}

	data, err := isobmff.GenerateInitSegment(videoTrack, audioTrack)
	if err != nil {
		return illegalState("generating init segment: %v", err)
	}

	r.videoMeta = videoTrack
	r.audioMeta = audioTrack
	r.initEmitted = true

	if r.OnInitSegment != nil {
		return r.OnInitSegment(data)
	}
	return nil
}

func (r *Remuxer) buildAudioTrack(meta flv.AudioMetadata) (*isobmff.AudioTrack, error) {
	if meta.Codec == "mp3" {
		return &isobmff.AudioTrack{
			Timescale:    r.audioTimescale,
			Codec:        "mp3",
			ChannelCount: meta.ChannelCount,
			SampleRate:   meta.SampleRate,
		}, nil
	}

	var asc mpeg4audio.AudioSpecificConfig
	if err := asc.Unmarshal(meta.Config); err != nil {
		return nil, err
	}
	return &isobmff.AudioTrack{
		Timescale:    r.audioTimescale,
		Codec:        "mp4a",
		ChannelCount: meta.ChannelCount,
		SampleRate:   meta.SampleRate,
		ASC:          asc,
	}, nil
}

// flushStashedSamples reinjects each track's stashed trailing sample as a
// forced one-sample batch (spec §4.4 "flushStashedSamples. Called before
// teardown or on explicit drain").
func (r *Remuxer) flushStashedSamples() error {
	if r.video.stashed != nil {
		if err := r.emitVideo(nil, true); err != nil {
			return err
		}
	}
	if r.audio.stashed != nil {
		if err := r.emitAudio(nil, true); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes any stashed trailing samples before teardown.
func (r *Remuxer) Close() error {
	return r.flushStashedSamples()
}

// Seek clears both stashed samples and segment-info lists and arms the
// seek-start audio padding for the next batch (spec §4.5 "remuxer seek(dts)
// clears both stashed samples and segment-info lists").
func (r *Remuxer) Seek(dts int64) {
	r.video.stashed = nil
	r.audio.stashed = nil
	r.video.reset()
	r.audio.reset()
	r.haveDTSBase = false
	r.afterSeek = true
	r.haveVideoBegin = false
}
