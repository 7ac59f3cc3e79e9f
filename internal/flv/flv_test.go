package flv

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/jmylchreest/flvtransmux/internal/bitstream"
)

func sampleSPS() []byte {
	return []byte{0x67, 0x42, 0xc0, 0x1e, 0xd9, 0x01, 0x40, 0x16, 0xe9, 0x0d, 0x00, 0xa3, 0x5b, 0x01, 0x01, 0x01, 0x40, 0x00, 0x00, 0x00, 0x40, 0x00, 0x00, 0x0f, 0x03}
}

func samplePPS() []byte {
	return []byte{0x68, 0xce, 0x3c, 0x80}
}

func flvHeader(hasAudio, hasVideo bool) []byte {
	var flags byte
	if hasAudio {
		flags |= 0x04
	}
	if hasVideo {
		flags |= 0x01
	}
	h := []byte{'F', 'L', 'V', 1, flags, 0, 0, 0, 9}
	h = append(h, 0, 0, 0, 0) // PreviousTagSize0
	return h
}

func buildTag(tagType byte, timestamp int32, payload []byte) []byte {
	out := make([]byte, 0, 11+len(payload)+4)
	out = append(out, tagType)
	size := len(payload)
	out = append(out, byte(size>>16), byte(size>>8), byte(size))
	out = append(out, byte(timestamp>>16), byte(timestamp>>8), byte(timestamp), byte(timestamp>>24))
	out = append(out, 0, 0, 0) // streamID
	out = append(out, payload...)

	prevSize := uint32(11 + len(payload))
	prevBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(prevBuf, prevSize)
	out = append(out, prevBuf...)
	return out
}

func avcSequenceHeaderPayload() []byte {
	sps := sampleSPS()
	pps := samplePPS()
	avcc := []byte{0x01, 0x42, 0xc0, 0x1e, 0xff, 0xe1}
	avcc = append(avcc, byte(len(sps)>>8), byte(len(sps)))
	avcc = append(avcc, sps...)
	avcc = append(avcc, 1)
	avcc = append(avcc, byte(len(pps)>>8), byte(len(pps)))
	avcc = append(avcc, pps...)

	payload := []byte{0x17, 0x00, 0, 0, 0} // frameType=1,codecId=7; packetType=0; cts=0
	return append(payload, avcc...)
}

func avcNALUTagPayload(nalu []byte, cts int32) []byte {
	payload := []byte{0x17, 0x01, byte(cts >> 16), byte(cts >> 8), byte(cts)}
	payload = append(payload, bitstream.WriteLength(len(nalu), 4)...)
	payload = append(payload, nalu...)
	return payload
}

func aacSequenceHeaderPayload() []byte {
	// objectType=2 (LC), samplingIdx=4 (44100), channelConfig=2 (stereo)
	return []byte{0xaf, 0x00, 0x12, 0x20}
}

func aacRawFramePayload(frame []byte) []byte {
	return append([]byte{0xaf, 0x01}, frame...)
}

func onMetaDataScriptTagPayload() []byte {
	var out []byte
	out = append(out, 0x02) // string marker
	out = append(out, 0, byte(len("onMetaData")))
	out = append(out, []byte("onMetaData")...)

	out = append(out, 0x08)       // ECMA array marker
	out = append(out, 0, 0, 0, 1) // approximate property count

	appendProp := func(name string, num float64) {
		out = append(out, byte(len(name)>>8), byte(len(name)))
		out = append(out, []byte(name)...)
		out = append(out, 0x00)
		bits := make([]byte, 8)
		binary.BigEndian.PutUint64(bits, math.Float64bits(num))
		out = append(out, bits...)
	}
	appendProp("duration", 10.0)

	out = append(out, 0, 0, 0x09) // object-end marker (empty name + marker 9)
	return out
}

func TestDemuxer_InitSegmentScenario(t *testing.T) {
	d := NewDemuxer(bitstream.UserAgentOther)

	var gotMediaInfo *MediaInfo
	d.OnMediaInfo = func(info MediaInfo) {
		m := info
		gotMediaInfo = &m
	}

	stream := flvHeader(true, true)
	stream = append(stream, buildTag(byte(TagTypeScript), 0, onMetaDataScriptTagPayload())...)
	stream = append(stream, buildTag(byte(TagTypeVideo), 0, avcSequenceHeaderPayload())...)
	stream = append(stream, buildTag(byte(TagTypeAudio), 0, aacSequenceHeaderPayload())...)

	consumed, err := d.Feed(stream, 0)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if consumed != len(stream) {
		t.Fatalf("consumed = %d, want %d", consumed, len(stream))
	}

	if gotMediaInfo == nil {
		t.Fatal("expected MediaInfo to be emitted")
	}
	if gotMediaInfo.Video.CodecString == "" {
		t.Fatal("expected non-empty video codec string")
	}
	if gotMediaInfo.Audio.Codec != "mp4a.40.5" {
		t.Fatalf("audio codec = %q, want mp4a.40.5 (HE-AAC promotion)", gotMediaInfo.Audio.Codec)
	}
	if gotMediaInfo.Duration != 10000 {
		t.Fatalf("duration = %v, want 10000", gotMediaInfo.Duration)
	}
}

func TestDemuxer_SamplesQueuedAndDispatched(t *testing.T) {
	d := NewDemuxer(bitstream.UserAgentOther)

	var dispatched bool
	var gotAudio, gotVideo int
	d.OnSamplesAvailable = func(audio *AudioTrack, video *VideoTrack) {
		dispatched = true
		gotAudio = len(audio.Samples)
		gotVideo = len(video.Samples)
	}

	stream := flvHeader(true, true)
	stream = append(stream, buildTag(byte(TagTypeVideo), 0, avcSequenceHeaderPayload())...)
	stream = append(stream, buildTag(byte(TagTypeAudio), 0, aacSequenceHeaderPayload())...)
	stream = append(stream, buildTag(byte(TagTypeVideo), 0, avcNALUTagPayload([]byte{0x65, 1, 2, 3}, 0))...)
	stream = append(stream, buildTag(byte(TagTypeAudio), 33, aacRawFramePayload([]byte{9, 9, 9}))...)

	if _, err := d.Feed(stream, 0); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if !dispatched {
		t.Fatal("expected OnSamplesAvailable to fire")
	}
	if gotAudio != 1 || gotVideo != 1 {
		t.Fatalf("got %d audio, %d video samples, want 1 and 1", gotAudio, gotVideo)
	}
}

func TestDemuxer_PartialTagNotConsumed(t *testing.T) {
	d := NewDemuxer(bitstream.UserAgentOther)

	stream := flvHeader(false, true)
	full := buildTag(byte(TagTypeVideo), 0, avcSequenceHeaderPayload())
	stream = append(stream, full...)

	truncated := stream[:len(stream)-5]
	consumed, err := d.Feed(truncated, 0)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if consumed != 13 {
		t.Fatalf("consumed = %d, want 13 (header only, tag withheld)", consumed)
	}
}

func TestProbe_ShortHeader(t *testing.T) {
	if _, ok := Probe([]byte{'F', 'L', 'V'}); ok {
		t.Fatal("expected probe miss for short header")
	}
}

func TestProbe_Idempotent(t *testing.T) {
	h := flvHeader(true, true)
	r1, ok1 := Probe(h)
	r2, ok2 := Probe(h)
	if !ok1 || !ok2 || r1 != r2 {
		t.Fatalf("probe not idempotent: %+v %v, %+v %v", r1, ok1, r2, ok2)
	}
}

func TestDemuxer_UnsupportedVideoCodec(t *testing.T) {
	d := NewDemuxer(bitstream.UserAgentOther)
	stream := flvHeader(false, true)
	stream = append(stream, buildTag(byte(TagTypeVideo), 0, []byte{0x12, 0x00, 0, 0, 0})...) // codecId=2

	_, err := d.Feed(stream, 0)
	if err == nil {
		t.Fatal("expected error for unsupported video codec")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindCodecUnsupported {
		t.Fatalf("expected CodecUnsupported error, got %v", err)
	}
}
