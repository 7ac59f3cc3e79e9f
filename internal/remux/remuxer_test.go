package remux

import (
	"testing"

	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/internal/flv"
)

func newTestRemuxer() *Remuxer {
	return NewRemuxer(
		config.RemuxConfig{VideoTimescale: 1000, AudioTimescale: 1000, IsLive: false},
		config.WorkaroundConfig{},
		nil,
	)
}

func mp3Track(samples []flv.AudioSample) *flv.AudioTrack {
	return &flv.AudioTrack{
		Samples: samples,
		Metadata: flv.AudioMetadata{
			Present:           true,
			Codec:             "mp3",
			SampleRate:        44100,
			ChannelCount:      2,
			RefSampleDuration: 26.122448979591837,
		},
	}
}

func TestRemuxer_AudioOnly_EmitsInitOnce(t *testing.T) {
	r := newTestRemuxer()

	var initCount int
	r.OnInitSegment = func(data []byte) error {
		initCount++
		if len(data) == 0 {
			t.Fatal("init segment data is empty")
		}
		return nil
	}

	var segments []MediaSegment
	r.OnMediaSegment = func(seg MediaSegment) error {
		segments = append(segments, seg)
		return nil
	}

	batch1 := mp3Track([]flv.AudioSample{
		{DTS: 0, OriginalDTS: 0, Unit: []byte{0x01, 0x02}},
		{DTS: 26, OriginalDTS: 26, Unit: []byte{0x03, 0x04}},
		{DTS: 52, OriginalDTS: 52, Unit: []byte{0x05, 0x06}},
	})
	if err := r.Feed(batch1, nil); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	if initCount != 1 {
		t.Fatalf("initCount = %d, want 1", initCount)
	}
	if len(segments) != 1 {
		t.Fatalf("len(segments) = %d, want 1 (batch-minimum rule stashes the trailing sample)", len(segments))
	}
	if segments[0].SampleCount != 2 {
		t.Fatalf("segments[0].SampleCount = %d, want 2", segments[0].SampleCount)
	}
	if segments[0].Type != "audio" {
		t.Fatalf("segments[0].Type = %q, want audio", segments[0].Type)
	}

	batch2 := mp3Track([]flv.AudioSample{
		{DTS: 78, OriginalDTS: 78, Unit: []byte{0x07, 0x08}},
	})
	if err := r.Feed(batch2, nil); err != nil {
		t.Fatalf("Feed() (second batch) error = %v", err)
	}

	if initCount != 1 {
		t.Fatalf("initCount after second batch = %d, want still 1 (init emitted once)", initCount)
	}
	if len(segments) != 2 {
		t.Fatalf("len(segments) after second batch = %d, want 2", len(segments))
	}
}

func TestRemuxer_Close_FlushesStashedSample(t *testing.T) {
	r := newTestRemuxer()
	r.OnInitSegment = func(data []byte) error { return nil }

	var segments []MediaSegment
	r.OnMediaSegment = func(seg MediaSegment) error {
		segments = append(segments, seg)
		return nil
	}

	batch := mp3Track([]flv.AudioSample{
		{DTS: 0, OriginalDTS: 0, Unit: []byte{0x01}},
		{DTS: 26, OriginalDTS: 26, Unit: []byte{0x02}},
	})
	if err := r.Feed(batch, nil); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("len(segments) before Close = %d, want 1 (first sample emitted, last stashed)", len(segments))
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("len(segments) after Close = %d, want 2 (stashed sample flushed)", len(segments))
	}
	if segments[1].SampleCount != 1 {
		t.Fatalf("flushed segment SampleCount = %d, want 1", segments[1].SampleCount)
	}
}

func TestRemuxer_DTSCorrectionAcrossDiscontinuity(t *testing.T) {
	// Mirrors the spec's DTS-correction scenario: nextDts=1000,
	// firstSampleOriginalDts=5000 => correction=4000, emitted DTS begins at 1000.
	s := &correctionState{}
	nextDTS := int64(1000)
	s.nextDTS = &nextDTS
	correction := computeCorrection(s, 5000, 1000)
	if correction != 4000 {
		t.Fatalf("correction = %d, want 4000", correction)
	}
	if 5000-correction != 1000 {
		t.Fatalf("corrected DTS = %d, want 1000", 5000-correction)
	}
}

func TestRemuxer_Seek_ResetsState(t *testing.T) {
	r := newTestRemuxer()
	r.OnInitSegment = func(data []byte) error { return nil }
	r.OnMediaSegment = func(seg MediaSegment) error { return nil }

	batch := mp3Track([]flv.AudioSample{
		{DTS: 0, OriginalDTS: 0, Unit: []byte{0x01}},
		{DTS: 26, OriginalDTS: 26, Unit: []byte{0x02}},
	})
	if err := r.Feed(batch, nil); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if r.audio.stashed == nil {
		t.Fatal("expected a stashed trailing sample before Seek")
	}

	r.Seek(0)

	if r.audio.stashed != nil {
		t.Fatal("Seek() should clear the stashed sample")
	}
	if r.audio.nextDTS != nil {
		t.Fatal("Seek() should clear nextDTS")
	}
	if r.audio.segments.Len() != 0 {
		t.Fatal("Seek() should clear the segment-info history")
	}
	if r.haveDTSBase {
		t.Fatal("Seek() should clear the established dtsBase so it is re-derived from the next batch")
	}
	if !r.afterSeek {
		t.Fatal("Seek() should arm afterSeek for seek-start audio padding")
	}
}
