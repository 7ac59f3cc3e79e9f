package bitstream

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// AAC object types as carried in AudioSpecificConfig, per ISO/IEC 14496-3.
const (
	AACObjectTypeMain = 1
	AACObjectTypeLC   = 2
	AACObjectTypeSSR  = 3
	AACObjectTypeHEAAC = 5 // SBR, "HE-AAC"
)

// aacSampleRates is the fixed 13-entry sampling-frequency-index table used by
// AudioSpecificConfig (index 15 means "explicit frequency", not supported here).
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// UserAgent selects the codec-promotion workaround table described in spec
// §4.2 ("User-agent shims apply"). Config exposes these as explicit flags
// (spec §9 "Platform workarounds") rather than sniffing a UA string.
type UserAgent int

const (
	UserAgentOther UserAgent = iota
	UserAgentFirefox
	UserAgentAndroid
)

// AudioSpecificConfig is the decoded AAC ASC (spec §4.2 "Audio tag").
type AudioSpecificConfig struct {
	ObjectType          int
	SamplingFrequencyIndex int
	SampleRate          int
	ChannelConfig       int
	ChannelCount        int
	ExtensionObjectType int
}

type bitReader struct {
	data []byte
	pos  int // bit position
}

func (r *bitReader) readBits(n int) (int, error) {
	v := 0
	for i := 0; i < n; i++ {
		byteIdx := r.pos / 8
		if byteIdx >= len(r.data) {
			return 0, fmt.Errorf("%w: ASC bit read past end", ErrTruncated)
		}
		bitIdx := 7 - (r.pos % 8)
		bit := (r.data[byteIdx] >> bitIdx) & 1
		v = v<<1 | int(bit)
		r.pos++
	}
	return v, nil
}

// ParseAudioSpecificConfig decodes the first ASC fields per spec §4.2: object
// type (5 bits), sampling index (4 bits), channel config (4 bits); if object
// type is 5 (HE-AAC/SBR), an extension sampling index and extension object
// type follow.
func ParseAudioSpecificConfig(data []byte) (*AudioSpecificConfig, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: ASC shorter than 2 bytes", ErrTruncated)
	}

	r := &bitReader{data: data}

	objectType, err := r.readBits(5)
	if err != nil {
		return nil, err
	}
	samplingIdx, err := r.readBits(4)
	if err != nil {
		return nil, err
	}
	channelConfig, err := r.readBits(4)
	if err != nil {
		return nil, err
	}

	asc := &AudioSpecificConfig{
		ObjectType:             objectType,
		SamplingFrequencyIndex: samplingIdx,
		ChannelConfig:          channelConfig,
	}

	if samplingIdx < len(aacSampleRates) {
		asc.SampleRate = aacSampleRates[samplingIdx]
	}

	if objectType == AACObjectTypeHEAAC {
		extIdx, err := r.readBits(4)
		if err == nil && extIdx < len(aacSampleRates) {
			asc.SampleRate = aacSampleRates[extIdx]
		}
		if extObjType, err := r.readBits(5); err == nil {
			asc.ExtensionObjectType = extObjType
		}
	}

	cc, err := mpeg4audio.ResolveChannelCount(uint8(channelConfig))
	if err != nil {
		asc.ChannelCount = channelConfig
	} else {
		asc.ChannelCount = cc
	}

	return asc, nil
}

// PromoteObjectType applies the codec-promotion rules of spec §4.2:
// Firefox uses HE-AAC for sampling index >= 6, else LC-AAC; Android always
// LC-AAC; other runtimes use HE-AAC except mono streams, which use LC-AAC.
func PromoteObjectType(ua UserAgent, samplingIdx int, channelCount int) int {
	switch ua {
	case UserAgentFirefox:
		if samplingIdx >= 6 {
			return AACObjectTypeHEAAC
		}
		return AACObjectTypeLC
	case UserAgentAndroid:
		return AACObjectTypeLC
	default:
		if channelCount == 1 {
			return AACObjectTypeLC
		}
		return AACObjectTypeHEAAC
	}
}

// EncodeCanonicalConfig reconstructs the 2- or 4-byte ASC blob used as the
// track's AudioSpecificConfig bytes and mp4a.40.N codec suffix, applying the
// promoted object type. A 4-byte config is emitted when the promoted object
// type is HE-AAC, carrying the SBR extension fields; otherwise 2 bytes.
//
// mediacommon's AudioSpecificConfig.Type only exposes ObjectTypeAACLC (no
// HE-AAC constant), so the LC path defers to its Marshal and the HE-AAC/SBR
// path is hand-rolled directly, same bit layout ParseAudioSpecificConfig reads.
func EncodeCanonicalConfig(asc *AudioSpecificConfig, promotedObjectType int) []byte {
	if promotedObjectType == AACObjectTypeLC {
		cfg := mpeg4audio.AudioSpecificConfig{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   asc.SampleRate,
			ChannelCount: asc.ChannelCount,
		}
		if encoded, err := cfg.Marshal(); err == nil {
			return encoded
		}
	}

	return encodeASCFallback(asc, promotedObjectType)
}

// encodeASCFallback hand-rolls the base 2-byte AudioSpecificConfig (object
// type, sampling index, channel config) and, for HE-AAC, appends the SBR
// extension sampling index and extension object type, following the same
// field layout ParseAudioSpecificConfig reads back for objectType==5.
func encodeASCFallback(asc *AudioSpecificConfig, objectType int) []byte {
	samplingIdx := asc.SamplingFrequencyIndex
	out := []byte{
		byte(objectType<<3) | byte(samplingIdx>>1),
		byte(samplingIdx<<7) | byte(asc.ChannelConfig<<3),
	}

	if objectType != AACObjectTypeHEAAC {
		return out
	}

	extIdx := samplingIdx
	if asc.ExtensionObjectType == AACObjectTypeHEAAC {
		// The source stream already carried an explicit SBR extension at a
		// doubled sampling rate; preserve its extension index verbatim.
		for i, rate := range aacSampleRates {
			if rate == asc.SampleRate {
				extIdx = i
			}
		}
	}
	out[1] |= byte(extIdx >> 1)
	out = append(out, byte(extIdx<<7)|byte(AACObjectTypeHEAAC<<2), 0)
	return out
}
