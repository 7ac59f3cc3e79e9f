package bitstream

import "testing"

func TestParseAudioSpecificConfig_LC(t *testing.T) {
	// object type 2 (LC), sampling index 4 (44100Hz), channel config 2 (stereo)
	asc, err := ParseAudioSpecificConfig([]byte{0x12, 0x20})
	if err != nil {
		t.Fatalf("ParseAudioSpecificConfig: %v", err)
	}
	if asc.ObjectType != AACObjectTypeLC {
		t.Fatalf("ObjectType = %d, want %d", asc.ObjectType, AACObjectTypeLC)
	}
	if asc.SampleRate != 44100 {
		t.Fatalf("SampleRate = %d, want 44100", asc.SampleRate)
	}
	if asc.ChannelConfig != 2 {
		t.Fatalf("ChannelConfig = %d, want 2", asc.ChannelConfig)
	}
	if asc.ChannelCount != 2 {
		t.Fatalf("ChannelCount = %d, want 2", asc.ChannelCount)
	}
}

func TestParseAudioSpecificConfig_Truncated(t *testing.T) {
	if _, err := ParseAudioSpecificConfig([]byte{0x12}); err == nil {
		t.Fatal("expected error for truncated ASC")
	}
}

func TestPromoteObjectType(t *testing.T) {
	cases := []struct {
		name         string
		ua           UserAgent
		samplingIdx  int
		channelCount int
		want         int
	}{
		{"firefox high rate", UserAgentFirefox, 6, 2, AACObjectTypeHEAAC},
		{"firefox low rate", UserAgentFirefox, 3, 2, AACObjectTypeLC},
		{"android always LC", UserAgentAndroid, 6, 2, AACObjectTypeLC},
		{"other default HE-AAC", UserAgentOther, 3, 2, AACObjectTypeHEAAC},
		{"other mono stays LC", UserAgentOther, 3, 1, AACObjectTypeLC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PromoteObjectType(tc.ua, tc.samplingIdx, tc.channelCount)
			if got != tc.want {
				t.Fatalf("PromoteObjectType(%v, %d, %d) = %d, want %d", tc.ua, tc.samplingIdx, tc.channelCount, got, tc.want)
			}
		})
	}
}

func TestEncodeCanonicalConfig(t *testing.T) {
	asc := &AudioSpecificConfig{
		ObjectType:             AACObjectTypeLC,
		SamplingFrequencyIndex: 4,
		SampleRate:             44100,
		ChannelConfig:          2,
		ChannelCount:           2,
	}
	encoded := EncodeCanonicalConfig(asc, AACObjectTypeLC)
	if len(encoded) < 2 {
		t.Fatalf("encoded config too short: %d bytes", len(encoded))
	}

	reparsed, err := ParseAudioSpecificConfig(encoded)
	if err != nil {
		t.Fatalf("re-parsing encoded config: %v", err)
	}
	if reparsed.SampleRate != 44100 {
		t.Fatalf("SampleRate after round trip = %d, want 44100", reparsed.SampleRate)
	}
}
