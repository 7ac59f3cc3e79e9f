package flv

import (
	"fmt"

	"github.com/jmylchreest/flvtransmux/internal/bitstream"
)

// trackTimescale is the fMP4 timescale the remuxer emits against (spec §3
// "Timebase... the fMP4 timescale is 1000"), used here only to compute
// refSampleDuration in the same units.
const trackTimescale = 1000

const (
	audioFormatMP3 = 2
	audioFormatAAC = 10
)

const (
	aacPacketTypeSequenceHeader = 0
	aacPacketTypeRawFrame       = 1
)

// handleAudioTag parses the audio tag header byte (format:4, rate:2, size:1,
// type:1) and dispatches to the codec-specific handler (spec §4.2 "Audio
// tag"). Only MP3 and AAC are accepted.
func (d *Demuxer) handleAudioTag(timestamp int64, body []byte) error {
	if len(body) < 1 {
		return formatError("audio tag shorter than 1 byte")
	}

	format := body[0] >> 4

	switch format {
	case audioFormatAAC:
		return d.handleAACTag(timestamp, body)
	case audioFormatMP3:
		return d.handleMP3Tag(timestamp, body)
	default:
		return codecUnsupported("unsupported audio format %d", format)
	}
}

func (d *Demuxer) handleAACTag(timestamp int64, body []byte) error {
	if len(body) < 2 {
		return formatError("AAC audio tag shorter than 2 bytes")
	}
	packetType := body[1]
	payload := body[2:]

	switch packetType {
	case aacPacketTypeSequenceHeader:
		asc, err := bitstream.ParseAudioSpecificConfig(payload)
		if err != nil {
			return formatError("parsing AudioSpecificConfig: %w", err)
		}
		promoted := bitstream.PromoteObjectType(d.ua, asc.SamplingFrequencyIndex, asc.ChannelCount)
		config := bitstream.EncodeCanonicalConfig(asc, promoted)

		d.audio.Metadata = AudioMetadata{
			Present:           true,
			Codec:             fmt.Sprintf("mp4a.40.%d", promoted),
			SampleRate:        asc.SampleRate,
			ChannelCount:      asc.ChannelCount,
			Config:            config,
			RefSampleDuration: 1024 * float64(trackTimescale) / float64(asc.SampleRate),
		}
		return nil

	case aacPacketTypeRawFrame:
		if !d.audio.Metadata.Present {
			return formatError("AAC raw frame before AudioSpecificConfig")
		}
		d.queueAudioSample(timestamp, payload)
		return nil

	default:
		return formatError("unknown AACPacketType %d", packetType)
	}
}

func (d *Demuxer) handleMP3Tag(timestamp int64, body []byte) error {
	if len(body) < 1 {
		return formatError("MP3 audio tag has no payload")
	}
	payload := body[1:]

	if !d.audio.Metadata.Present {
		hdr, err := bitstream.ParseMP3FrameHeader(payload)
		if err != nil {
			return formatError("parsing MP3 frame header: %w", err)
		}
		d.audio.Metadata = AudioMetadata{
			Present:           true,
			Codec:             "mp3",
			SampleRate:        hdr.SampleRate,
			ChannelCount:      hdr.ChannelCount,
			RefSampleDuration: 1152 * float64(trackTimescale) / float64(hdr.SampleRate),
		}
	}

	d.queueAudioSample(timestamp, payload)
	return nil
}

func (d *Demuxer) queueAudioSample(timestamp int64, unit []byte) {
	sample := AudioSample{
		DTS:         timestamp,
		PTS:         timestamp,
		OriginalDTS: timestamp,
		Size:        len(unit),
		Unit:        unit,
	}
	d.audio.Samples = append(d.audio.Samples, sample)
	d.audio.ByteLength += len(unit)
}
