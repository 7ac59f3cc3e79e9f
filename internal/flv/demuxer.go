package flv

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/flvtransmux/internal/bitstream"
)

type state int

const (
	stateNeedHeader state = iota
	stateNeedPrevTagSize0
	stateNeedTagHeader
	stateNeedTagBody
	stateNeedPrevTagSize
)

// Demuxer is a stateful FLV tag parser. It consumes byte slices handed to it
// by an I/O controller (internal/stash) via Feed and reports how many
// leading bytes it absorbed, per spec §4.2 "State machine" and the partial-
// consumption contract of §4.1.
//
// Demuxer is not safe for concurrent use; the spec's concurrency model (§5)
// is single-threaded cooperative, one Feed call running to completion before
// the next.
type Demuxer struct {
	state state

	declaredHasAudio bool
	declaredHasVideo bool

	pendingTagType   TagType
	pendingDataSize  uint32
	pendingTimestamp int64
	pendingAbsOffset int64

	audio *AudioTrack
	video *VideoTrack

	// naluLengthSize is the AVCDecoderConfigurationRecord's declared NALU
	// length-prefix width, learned from the first avcC record (spec §4.2
	// "naluLengthSize").
	naluLengthSize int

	ua bitstream.UserAgent

	// OverrideHasAudio/OverrideHasVideo, when non-nil, pin track presence
	// from the caller's mediaDataSource rather than onMetaData (spec §4.2
	// "hasAudio, hasVideo (unless overridden)").
	OverrideHasAudio *bool
	OverrideHasVideo *bool

	mediaDuration float64
	keyframes     KeyframesIndex
	mediaInfoSent bool

	// OnMediaInfo fires exactly once per session, once all declared tracks
	// have their required metadata fields populated (spec §3 "MediaInfo").
	OnMediaInfo func(MediaInfo)

	// OnSamplesAvailable fires after a Feed call if initial metadata for both
	// declared tracks has been dispatched and at least one queue is
	// non-empty (spec §4.2 "Emit policy"). The callee owns the returned
	// tracks' sample slices for the duration of the call only; the demuxer
	// clears each track's Samples/ByteLength once the callback returns.
	OnSamplesAvailable func(audio *AudioTrack, video *VideoTrack)

	// OnWarning fires for non-fatal issues (spec §4.2 "Failure... Parsing may
	// continue after warnings").
	OnWarning func(error)
}

// NewDemuxer constructs a Demuxer. ua selects the AAC object-type promotion
// table (spec §4.2, §9).
func NewDemuxer(ua bitstream.UserAgent) *Demuxer {
	return &Demuxer{
		state: stateNeedHeader,
		audio: &AudioTrack{ID: 2, Type: "audio"},
		video: &VideoTrack{ID: 1, Type: "video"},
		ua:    ua,
	}
}

// Feed presents the next contiguous slice of source bytes at absolute
// offset absOffset, returning how many leading bytes were consumed. The
// caller must retain any unconsumed suffix and re-present it (with more
// data appended) on the next call, per spec §4.1's stash protocol.
func (d *Demuxer) Feed(data []byte, absOffset int64) (consumed int, err error) {
	defer func() {
		if err == nil {
			d.maybeDispatch()
		}
	}()

	for {
		switch d.state {
		case stateNeedHeader:
			if len(data)-consumed < 9 {
				return consumed, nil
			}
			probe, ok := Probe(data[consumed:])
			if !ok {
				return consumed, formatError("invalid FLV header")
			}
			if int(probe.DataOffset) > len(data)-consumed {
				return consumed, nil
			}
			d.declaredHasAudio = probe.HasAudio
			d.declaredHasVideo = probe.HasVideo
			if d.OverrideHasAudio != nil {
				d.declaredHasAudio = *d.OverrideHasAudio
			}
			if d.OverrideHasVideo != nil {
				d.declaredHasVideo = *d.OverrideHasVideo
			}
			consumed += int(probe.DataOffset)
			d.state = stateNeedPrevTagSize0

		case stateNeedPrevTagSize0:
			if len(data)-consumed < 4 {
				return consumed, nil
			}
			consumed += 4
			d.state = stateNeedTagHeader

		case stateNeedTagHeader:
			if len(data)-consumed < 11 {
				return consumed, nil
			}
			hdr := data[consumed : consumed+11]
			tagType := TagType(hdr[0])
			dataSize := uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])
			ts := uint32(hdr[7])<<24 | uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6])

			if uint64(consumed)+11+uint64(dataSize)+4 > uint64(len(data)) {
				// Boundary behavior: a tag whose declared size would overrun
				// the buffer is not consumed at all (spec §8).
				return consumed, nil
			}

			d.pendingTagType = tagType
			d.pendingDataSize = dataSize
			d.pendingTimestamp = int64(int32(ts))
			d.pendingAbsOffset = absOffset + int64(consumed)
			consumed += 11
			d.state = stateNeedTagBody

		case stateNeedTagBody:
			body := data[consumed : consumed+int(d.pendingDataSize)]
			tagErr := d.dispatchTag(d.pendingTagType, d.pendingTimestamp, body, d.pendingAbsOffset)
			if tagErr != nil {
				var fe *Error
				if errors.As(tagErr, &fe) && fe.Kind == KindFormatError {
					d.warn(tagErr)
				} else {
					return consumed, tagErr
				}
			}
			consumed += int(d.pendingDataSize)
			d.state = stateNeedPrevTagSize

		case stateNeedPrevTagSize:
			if len(data)-consumed < 4 {
				return consumed, nil
			}
			consumed += 4
			d.state = stateNeedTagHeader

		default:
			return consumed, internalError("unreachable demuxer state %d", d.state)
		}
	}
}

func (d *Demuxer) warn(err error) {
	if d.OnWarning != nil {
		d.OnWarning(err)
	}
}

// dispatchTag routes one tag body to its type-specific handler.
func (d *Demuxer) dispatchTag(tagType TagType, timestamp int64, body []byte, absOffset int64) error {
	switch tagType {
	case TagTypeAudio:
		return d.handleAudioTag(timestamp, body)
	case TagTypeVideo:
		return d.handleVideoTag(timestamp, body, absOffset)
	case TagTypeScript:
		return d.handleScriptTag(body)
	default:
		return nil
	}
}

// maybeDispatch implements spec §4.2's end-of-parseChunks check: if initial
// metadata for both declared tracks has been dispatched and at least one
// queue is non-empty, invoke OnSamplesAvailable and clear both tracks.
func (d *Demuxer) maybeDispatch() {
	audioReady := !d.declaredHasAudio || d.audio.Metadata.Present
	videoReady := !d.declaredHasVideo || d.video.Metadata.Present
	if !audioReady || !videoReady {
		return
	}

	d.maybeSendMediaInfo()

	if len(d.audio.Samples) == 0 && len(d.video.Samples) == 0 {
		return
	}

	if d.OnSamplesAvailable != nil {
		d.OnSamplesAvailable(d.audio, d.video)
	}
	d.audio.Samples = nil
	d.audio.ByteLength = 0
	d.video.Samples = nil
	d.video.ByteLength = 0
}

// maybeSendMediaInfo emits MediaInfo exactly once, per spec §3 "emitted
// exactly once", once all declared tracks' metadata is populated.
func (d *Demuxer) maybeSendMediaInfo() {
	if d.mediaInfoSent {
		return
	}

	info := MediaInfo{
		MimeType:  d.buildMimeType(),
		Duration:  d.mediaDuration,
		HasAudio:  d.declaredHasAudio,
		HasVideo:  d.declaredHasVideo,
		Audio:     d.audio.Metadata,
		Video:     d.video.Metadata,
		Keyframes: d.keyframes,
	}
	d.mediaInfoSent = true
	if d.OnMediaInfo != nil {
		d.OnMediaInfo(info)
	}
}

func (d *Demuxer) buildMimeType() string {
	codecs := ""
	if d.declaredHasVideo && d.video.Metadata.Present {
		codecs = d.video.Metadata.CodecString
	}
	if d.declaredHasAudio && d.audio.Metadata.Present {
		if codecs != "" {
			codecs += ","
		}
		codecs += d.audio.Metadata.Codec
	}
	return fmt.Sprintf(`video/x-flv; codecs="%s"`, codecs)
}
