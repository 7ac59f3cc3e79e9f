package isobmff

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// Track IDs are fixed: video is always track 1, audio track 2, matching the
// donor's single-video/single-audio track layout.
const (
	VideoTrackID = 1
	AudioTrackID = 2
)

// VideoTrack describes the AVC track metadata needed to build the init
// segment's video trak (spec §3 "Track metadata (video)").
type VideoTrack struct {
	Timescale uint32
	SPS       []byte
	PPS       []byte
}

// AudioTrack describes audio track metadata (spec §3 "Track metadata
// (audio)"). Codec is either "mp4a" (AAC) or "mp3".
type AudioTrack struct {
	Timescale    uint32
	Codec        string
	ChannelCount int
	SampleRate   int
	ASC          mpeg4audio.AudioSpecificConfig // AAC only
}

// GenerateInitSegment builds ftyp+moov for the given tracks, delegating the
// box layout entirely to fmp4.Init.Marshal. Either track may be nil; at
// least one must be present.
func GenerateInitSegment(video *VideoTrack, audio *AudioTrack) ([]byte, error) {
	init := &fmp4.Init{}

	if video != nil {
		if len(video.SPS) == 0 || len(video.PPS) == 0 {
			return nil, fmt.Errorf("isobmff: video track missing SPS/PPS")
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        VideoTrackID,
			TimeScale: video.Timescale,
			Codec:     &mp4.CodecH264{SPS: video.SPS, PPS: video.PPS},
		})
	}

	if audio != nil {
		codec, err := audioCodec(audio)
		if err != nil {
			return nil, err
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        AudioTrackID,
			TimeScale: audio.Timescale,
			Codec:     codec,
		})
	}

	if len(init.Tracks) == 0 {
		return nil, fmt.Errorf("isobmff: init segment needs at least one track")
	}

	return marshalToBytes(init)
}

func audioCodec(t *AudioTrack) (mp4.Codec, error) {
	switch t.Codec {
	case "mp4a":
		return &mp4.CodecMPEG4Audio{Config: t.ASC}, nil
	case "mp3":
		return &mp4.CodecMPEG1Audio{
			SampleRate:   t.SampleRate,
			ChannelCount: t.ChannelCount,
		}, nil
	default:
		return nil, fmt.Errorf("isobmff: unsupported audio codec %q", t.Codec)
	}
}
