package bitstream

import "testing"

func TestParseMP3FrameHeader_MPEG1Layer3(t *testing.T) {
	// MPEG1 Layer III, 128kbps, 44100Hz, joint stereo, no padding.
	header := []byte{0xff, 0xfb, 0x90, 0x44}

	h, err := ParseMP3FrameHeader(header)
	if err != nil {
		t.Fatalf("ParseMP3FrameHeader: %v", err)
	}
	if h.SampleRate != 44100 {
		t.Fatalf("SampleRate = %d, want 44100", h.SampleRate)
	}
	if h.ChannelCount != 2 {
		t.Fatalf("ChannelCount = %d, want 2", h.ChannelCount)
	}
	if h.BitRate != 128 {
		t.Fatalf("BitRate = %d, want 128", h.BitRate)
	}
	if h.FrameSize <= 0 {
		t.Fatalf("FrameSize = %d, want positive", h.FrameSize)
	}
}

func TestParseMP3FrameHeader_MPEG2Layer3Mono(t *testing.T) {
	// MPEG2 Layer III, 8kbps, 22050Hz, mono.
	header := []byte{0xff, 0xf3, 0x10, 0xc4}

	h, err := ParseMP3FrameHeader(header)
	if err != nil {
		t.Fatalf("ParseMP3FrameHeader: %v", err)
	}
	if h.SampleRate != 22050 {
		t.Fatalf("SampleRate = %d, want 22050", h.SampleRate)
	}
	if h.ChannelCount != 1 {
		t.Fatalf("ChannelCount = %d, want 1", h.ChannelCount)
	}
}

func TestParseMP3FrameHeader_BadSync(t *testing.T) {
	if _, err := ParseMP3FrameHeader([]byte{0x00, 0x00, 0x00, 0x00}); err == nil {
		t.Fatal("expected error for missing sync")
	}
}

func TestParseMP3FrameHeader_Truncated(t *testing.T) {
	if _, err := ParseMP3FrameHeader([]byte{0xff, 0xfb}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
