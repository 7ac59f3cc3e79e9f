package bitstream

import "fmt"

// mpegVersion identifies the MPEG audio version field of a frame header.
type mpegVersion int

const (
	mpegVersion2_5 mpegVersion = iota
	mpegVersionReserved
	mpegVersion2
	mpegVersion1
)

// mpegLayer identifies the layer field of a frame header.
type mpegLayer int

const (
	mpegLayerReserved mpegLayer = iota
	mpegLayer3
	mpegLayer2
	mpegLayer1
)

// mp3SampleRates is indexed [version][rateIndex], version per mpegVersion
// (reserved entry unused), per ISO/IEC 11172-3 / 13818-3.
var mp3SampleRates = map[mpegVersion][4]int{
	mpegVersion1:   {44100, 48000, 32000, 0},
	mpegVersion2:   {22050, 24000, 16000, 0},
	mpegVersion2_5: {11025, 12000, 8000, 0},
}

// mp3BitRatesV1 (MPEG-1) and mp3BitRatesV2 (MPEG-2 and 2.5) are indexed
// [layer][bitrateIndex], in kbps.
// Table rows follow the MPEG audio spec's fixed bitrate tables; index 0 and
// 15 (free/bad) are not supported.
var mp3BitRatesV1 = map[mpegLayer][16]int{
	mpegLayer1: {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
	mpegLayer2: {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
	mpegLayer3: {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
}

var mp3BitRatesV2 = map[mpegLayer][16]int{
	mpegLayer1: {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
	mpegLayer2: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	mpegLayer3: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
}

// MP3FrameHeader is the subset of an MPEG audio frame header needed to
// populate audio track metadata (spec §4.2 "MP3 audio uses MPEG audio frame
// header tables").
type MP3FrameHeader struct {
	SampleRate   int
	ChannelCount int
	BitRate      int // kbps
	FrameSize    int // bytes, including the 4-byte header
}

// ParseMP3FrameHeader decodes the 4-byte frame header at the start of data.
// Only the fields needed for track metadata are extracted; CRC, padding and
// private bits are consumed but not surfaced.
func ParseMP3FrameHeader(data []byte) (*MP3FrameHeader, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: MP3 frame header shorter than 4 bytes", ErrTruncated)
	}
	if data[0] != 0xff || data[1]&0xe0 != 0xe0 {
		return nil, fmt.Errorf("bitstream: missing MP3 frame sync")
	}

	version := mpegVersion((data[1] >> 3) & 0x03)
	layer := mpegLayer((data[1] >> 1) & 0x03)
	if layer == mpegLayerReserved || version == mpegVersionReserved {
		return nil, fmt.Errorf("bitstream: reserved MP3 version/layer")
	}

	bitrateIdx := (data[2] >> 4) & 0x0f
	sampleRateIdx := (data[2] >> 2) & 0x03
	padding := int((data[2] >> 1) & 0x01)
	channelMode := (data[3] >> 6) & 0x03

	rates, ok := mp3SampleRates[version]
	if !ok || sampleRateIdx == 3 || rates[sampleRateIdx] == 0 {
		return nil, fmt.Errorf("bitstream: reserved MP3 sample rate index")
	}
	sampleRate := rates[sampleRateIdx]

	var bitrateTable map[mpegLayer][16]int
	if version == mpegVersion1 {
		bitrateTable = mp3BitRatesV1
	} else {
		bitrateTable = mp3BitRatesV2
	}
	bitRate := bitrateTable[layer][bitrateIdx]
	if bitRate == 0 {
		return nil, fmt.Errorf("bitstream: free or bad MP3 bitrate index")
	}

	channelCount := 2
	if channelMode == 0x03 {
		channelCount = 1
	}

	frameSize := mp3FrameSize(layer, bitRate, sampleRate, padding)

	return &MP3FrameHeader{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		BitRate:      bitRate,
		FrameSize:    frameSize,
	}, nil
}

func mp3FrameSize(layer mpegLayer, bitRateKbps, sampleRate, padding int) int {
	bitsPerSample := 1
	slotSize := 1
	if layer == mpegLayer1 {
		bitsPerSample = 4
		slotSize = 4
	}
	// frameSize = floor(samplesPerFrame/8 * bitRate / sampleRate) + padding*slotSize
	samplesPerFrame := 1152
	if layer == mpegLayer1 {
		samplesPerFrame = 384
	}
	_ = bitsPerSample
	return (samplesPerFrame/8)*(bitRateKbps*1000)/sampleRate + padding*slotSize
}
