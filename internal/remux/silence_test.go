package remux

import (
	"testing"

	"github.com/jmylchreest/flvtransmux/internal/flv"
)

func TestFillAudioGaps_Disabled(t *testing.T) {
	samples := []flv.AudioSample{
		{DTS: 0, Duration: 21},
		{DTS: 1000, Duration: 21},
	}
	got := fillAudioGaps(samples, 21.3, 2, false, true)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (disabled should pass through)", len(got))
	}
}

func TestFillAudioGaps_NoGap(t *testing.T) {
	samples := []flv.AudioSample{
		{DTS: 0, Duration: 21},
		{DTS: 21, Duration: 21},
		{DTS: 42, Duration: 21},
	}
	got := fillAudioGaps(samples, 21.3, 2, true, true)
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (no gap to fill)", len(got))
	}
}

func TestFillAudioGaps_InsertsSilentFrames(t *testing.T) {
	samples := []flv.AudioSample{
		{DTS: 0, Duration: 21, Unit: []byte{0xAA}},
		{DTS: 200, Duration: 21, Unit: []byte{0xBB}},
	}
	got := fillAudioGaps(samples, 21.3, 2, true, true)
	if len(got) <= 2 {
		t.Fatalf("len(got) = %d, want > 2 (gap should be filled with silent frames)", len(got))
	}
	// Every inserted frame must land strictly between the two real samples
	// and the final cursor position must align exactly to the next sample.
	last := got[len(got)-2]
	if last.DTS+int64(last.Duration) != 200 {
		t.Fatalf("last inserted frame ends at %d, want 200", last.DTS+int64(last.Duration))
	}
}

func TestFillAudioGaps_MP3NotFilled(t *testing.T) {
	samples := []flv.AudioSample{
		{DTS: 0, Duration: 21},
		{DTS: 200, Duration: 21},
	}
	got := fillAudioGaps(samples, 21.3, 2, true, false)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (MP3 gaps are left uncorrected)", len(got))
	}
}

func TestSeekStartAudioPad(t *testing.T) {
	pad, ok := seekStartAudioPad(500, 100, 2, []byte{0xCC}, true)
	if !ok {
		t.Fatal("seekStartAudioPad should produce a pad when audio starts after video")
	}
	if pad.DTS != 100 || pad.Duration != 400 {
		t.Fatalf("pad = %+v, want DTS=100 Duration=400", pad)
	}
}

func TestSeekStartAudioPad_NoPadNeeded(t *testing.T) {
	_, ok := seekStartAudioPad(100, 100, 2, nil, true)
	if ok {
		t.Fatal("seekStartAudioPad should not pad when audio already starts at or before video")
	}
}

func TestSeekStartAudioPad_MP3Skipped(t *testing.T) {
	_, ok := seekStartAudioPad(500, 100, 2, nil, false)
	if ok {
		t.Fatal("seekStartAudioPad should not pad MP3 tracks")
	}
}

func TestSilentAACFrame_FallsBackToPriorUnit(t *testing.T) {
	prior := []byte{0x01, 0x02, 0x03}
	got := silentAACFrame(6, prior) // 6 channels: not in the table
	if len(got) != len(prior) || got[0] != prior[0] {
		t.Fatalf("silentAACFrame(6, ...) = %v, want fallback to prior unit %v", got, prior)
	}
}
