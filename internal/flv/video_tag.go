package flv

import (
	"github.com/jmylchreest/flvtransmux/internal/bitstream"
)

const (
	videoCodecIDAVC = 7
)

const (
	avcPacketTypeSequenceHeader = 0
	avcPacketTypeNALU           = 1
	avcPacketTypeEndOfSequence  = 2
)

const keyFrameType = 1

// handleVideoTag parses the video tag header byte (frameType:4, codecId:4)
// and dispatches by AVCPacketType (spec §4.2 "Video tag"). Only codecId==7
// (AVC) is accepted; absOffset is the tag's absolute source byte offset,
// used for the keyframe-index file position.
func (d *Demuxer) handleVideoTag(timestamp int64, body []byte, absOffset int64) error {
	if len(body) < 2 {
		return formatError("video tag shorter than 2 bytes")
	}

	frameType := body[0] >> 4
	codecID := body[0] & 0x0f
	if codecID != videoCodecIDAVC {
		return codecUnsupported("unsupported video codec id %d", codecID)
	}

	packetType := body[1]
	if packetType == avcPacketTypeEndOfSequence {
		return nil
	}
	if len(body) < 5 {
		return formatError("AVC video tag shorter than 5 bytes")
	}

	u24 := uint32(body[2])<<16 | uint32(body[3])<<8 | uint32(body[4])
	cts := int32(u24<<8) >> 8
	payload := body[5:]

	switch packetType {
	case avcPacketTypeSequenceHeader:
		return d.handleAVCSequenceHeader(payload)
	case avcPacketTypeNALU:
		return d.handleAVCNALUs(timestamp, cts, frameType, payload, absOffset)
	default:
		return formatError("unknown AVCPacketType %d", packetType)
	}
}

func (d *Demuxer) handleAVCSequenceHeader(payload []byte) error {
	record, err := bitstream.ParseAVCDecoderConfigurationRecord(payload)
	if err != nil {
		return formatError("parsing AVCDecoderConfigurationRecord: %w", err)
	}
	if len(record.PPS) == 0 {
		return formatError("avcC has no PPS")
	}

	spsInfo, err := bitstream.ParseSPS(record.SPS[0])
	if err != nil {
		return formatError("parsing SPS: %w", err)
	}

	d.naluLengthSize = record.NALULengthSize()

	refDuration := float64(trackTimescale) * float64(spsInfo.FrameRate.Den) / float64(spsInfo.FrameRate.Num)

	d.video.Metadata = VideoMetadata{
		Present:           true,
		AVCC:              record.Marshal(),
		SPS:               record.SPS[0],
		PPS:               record.PPS[0],
		CodecString:       spsInfo.CodecString(),
		ProfileString:     spsInfo.ProfileString,
		LevelString:       spsInfo.LevelString,
		CodecWidth:        spsInfo.CodecWidth,
		CodecHeight:       spsInfo.CodecHeight,
		PresentWidth:      spsInfo.PresentWidth,
		PresentHeight:     spsInfo.PresentHeight,
		FrameRate:         spsInfo.FrameRate,
		RefSampleDuration: refDuration,
		NALULengthSize:    d.naluLengthSize,
	}
	return nil
}

func (d *Demuxer) handleAVCNALUs(timestamp int64, cts int32, frameType byte, payload []byte, absOffset int64) error {
	if !d.video.Metadata.Present {
		return formatError("AVC NALU tag before AVCDecoderConfigurationRecord")
	}

	units, err := bitstream.SplitAVCCNALUs(payload, d.naluLengthSize)
	if err != nil {
		return formatError("splitting AVCC NALUs: %w", err)
	}

	nalus := make([]NALU, 0, len(units))
	for _, u := range units {
		naluType := u[d.naluLengthSize] & 0x1f
		nalus = append(nalus, NALU{Type: naluType, Data: u})
	}

	isKeyframe := frameType == keyFrameType
	filePosition := int64(-1)
	if isKeyframe {
		filePosition = absOffset
	}

	sample := VideoSample{
		DTS:          timestamp,
		PTS:          timestamp + int64(cts),
		CTS:          cts,
		Size:         len(payload),
		IsKeyframe:   isKeyframe,
		OriginalDTS:  timestamp,
		NALUs:        nalus,
		FilePosition: filePosition,
	}
	d.video.Samples = append(d.video.Samples, sample)
	d.video.ByteLength += len(payload)
	return nil
}
