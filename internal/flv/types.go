// Package flv implements the FLV tag-level demuxer: header probing, the
// tag-record state machine, and AVC/AAC/MP3 sample extraction into typed
// audio/video tracks. It knows nothing about byte delivery or back-pressure;
// callers (internal/stash) feed it chunks via Feed and react to its
// callbacks.
package flv

import "github.com/jmylchreest/flvtransmux/internal/bitstream"

// TagType is the FLV tag type byte.
type TagType uint8

const (
	TagTypeAudio  TagType = 8
	TagTypeVideo  TagType = 9
	TagTypeScript TagType = 18
)

// ProbeResult is returned by Probe on a successful 9-byte FLV header match.
type ProbeResult struct {
	DataOffset uint32
	HasAudio   bool
	HasVideo   bool
}

// Probe validates the FLV header (spec §4.2 "Framing"): signature "FLV",
// version byte, flags byte (hasAudio at bit 2, hasVideo at bit 0), and a
// big-endian u32 header size >= 9. It never reads past the first 9 bytes.
func Probe(firstBytes []byte) (ProbeResult, bool) {
	if len(firstBytes) < 9 {
		return ProbeResult{}, false
	}
	if firstBytes[0] != 'F' || firstBytes[1] != 'L' || firstBytes[2] != 'V' || firstBytes[3] != 1 {
		return ProbeResult{}, false
	}

	flags := firstBytes[4]
	headerSize := uint32(firstBytes[5])<<24 | uint32(firstBytes[6])<<16 | uint32(firstBytes[7])<<8 | uint32(firstBytes[8])
	if headerSize < 9 {
		return ProbeResult{}, false
	}

	return ProbeResult{
		DataOffset: headerSize,
		HasAudio:   flags&0x04 != 0,
		HasVideo:   flags&0x01 != 0,
	}, true
}

// NALU is one length-prefixed NAL unit as carried in a video sample, kept in
// its wire form (length header + payload) per spec §4.2.
type NALU struct {
	Type byte
	Data []byte // includes the length prefix
}

// VideoSample is one decoded AVC access unit (spec §3 "Sample (video)").
type VideoSample struct {
	DTS          int64
	PTS          int64
	CTS          int32
	Duration     uint32
	Size         int
	IsKeyframe   bool
	OriginalDTS  int64
	NALUs        []NALU
	FilePosition int64 // absolute source byte offset of the tag, -1 if unknown
}

// AudioSample is one decoded AAC or MP3 frame (spec §3 "Sample (audio)").
// PTS always equals DTS; CTS is always zero for audio.
type AudioSample struct {
	DTS         int64
	PTS         int64
	Duration    uint32
	Size        int
	OriginalDTS int64
	Unit        []byte // raw AAC frame (no ADTS) or raw MPEG audio frame
}

// AudioMetadata is the audio track metadata emitted once the first
// AudioSpecificConfig (AAC) or first frame (MP3) has been parsed (spec §3
// "Track metadata (audio)").
type AudioMetadata struct {
	Present           bool
	Codec             string // "mp4a.40.N" or "mp3"
	SampleRate        int
	ChannelCount      int
	Config            []byte // AudioSpecificConfig bytes, AAC only
	RefSampleDuration float64
	Duration          float64
}

// VideoMetadata is the video track metadata emitted once the AVC decoder
// configuration record has been parsed (spec §3 "Track metadata (video)").
type VideoMetadata struct {
	Present           bool
	AVCC              []byte // raw avcC bytes
	SPS               []byte
	PPS               []byte
	CodecString       string
	ProfileString     string
	LevelString       string
	CodecWidth        int
	CodecHeight       int
	PresentWidth      int
	PresentHeight     int
	FrameRate         bitstream.FrameRate
	RefSampleDuration float64
	Duration          float64
	// NALULengthSize is the AVCC length-prefix width (1 to 4 bytes)
	// carried by every VideoSample.NALUs[i].Data in this track.
	NALULengthSize int
}

// AudioTrack is the mutable batch container for audio samples (spec §3
// "Track"), drained on each remux pass.
type AudioTrack struct {
	ID             int
	Type           string
	SequenceNumber uint32
	Samples        []AudioSample
	ByteLength     int
	Metadata       AudioMetadata
}

// VideoTrack is the mutable batch container for video samples.
type VideoTrack struct {
	ID             int
	Type           string
	SequenceNumber uint32
	Samples        []VideoSample
	ByteLength     int
	Metadata       VideoMetadata
}

// KeyframesIndex is the MediaInfo-embedded keyframe index (spec §3
// "MediaInfo... keyframes index {times[], filePositions[]}"), built from
// onMetaData's "keyframes" field with entry 0 (the AVC sequence header)
// stripped.
type KeyframesIndex struct {
	Times         []float64
	FilePositions []float64
}

// MediaInfo is the aggregated, read-only bundle emitted exactly once per
// session, once all declared tracks have their required fields populated
// (spec §3 "MediaInfo").
type MediaInfo struct {
	MimeType  string
	Duration  float64
	HasAudio  bool
	HasVideo  bool
	Audio     AudioMetadata
	Video     VideoMetadata
	Keyframes KeyframesIndex
}
