package amf

// Metadata holds the subset of an onMetaData payload the demuxer consumes
// (spec §4.2 "Script tag (AMF)"). All fields are optional: missing or
// mis-typed source fields are left at their zero value rather than causing
// failure.
type Metadata struct {
	HasAudio      *bool
	HasVideo      *bool
	AudioDataRate float64
	VideoDataRate float64
	Width         float64
	Height        float64
	Duration      float64
	FrameRate     float64
	// Keyframes holds raw AMF arrays for "filepositions" and "times", before
	// entry-0 stripping (that belongs to the seek-index consumer, since
	// entry 0 describes the AVC sequence header, not a real keyframe).
	KeyframeFilePositions []float64
	KeyframeTimes         []float64
}

// ParseOnMetaData extracts known onMetaData fields from a decoded AMF
// object. Unknown fields are ignored; known fields of the wrong type are
// skipped rather than causing an error, per spec §9 "missing or mis-typed
// fields are warnings, not failures".
func ParseOnMetaData(obj map[string]Value) Metadata {
	var md Metadata

	if v, ok := obj["hasAudio"]; ok && v.IsBool() {
		b := v.Bool
		md.HasAudio = &b
	}
	if v, ok := obj["hasVideo"]; ok && v.IsBool() {
		b := v.Bool
		md.HasVideo = &b
	}
	md.AudioDataRate = numberField(obj, "audiodatarate")
	md.VideoDataRate = numberField(obj, "videodatarate")
	md.Width = numberField(obj, "width")
	md.Height = numberField(obj, "height")
	md.Duration = numberField(obj, "duration")
	md.FrameRate = numberField(obj, "framerate")

	if v, ok := obj["keyframes"]; ok && v.Kind == KindObject {
		if fp, ok := v.Object["filepositions"]; ok && fp.Kind == KindArray {
			md.KeyframeFilePositions = floatsFromArray(fp.Array)
		}
		if times, ok := v.Object["times"]; ok && times.Kind == KindArray {
			md.KeyframeTimes = floatsFromArray(times.Array)
		}
	}

	return md
}

func numberField(obj map[string]Value, name string) float64 {
	if v, ok := obj[name]; ok && v.IsNumber() {
		return v.Number
	}
	return 0
}

func floatsFromArray(values []Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v.IsNumber() {
			out = append(out, v.Number)
		}
	}
	return out
}

// OnMetaDataFromScriptTag decodes a script-tag payload ("onMetaData" name
// value followed by the metadata object/ECMA-array value) and returns the
// extracted Metadata. It returns ok=false if the payload does not carry an
// onMetaData event, which is not an error: other script events are ignored.
func OnMetaDataFromScriptTag(data []byte) (Metadata, bool, error) {
	values, err := DecodeAll(data)
	if err != nil {
		return Metadata{}, false, err
	}
	if len(values) < 2 {
		return Metadata{}, false, nil
	}
	if !values[0].IsString() || values[0].String != "onMetaData" {
		return Metadata{}, false, nil
	}
	if values[1].Kind != KindObject {
		return Metadata{}, false, nil
	}
	return ParseOnMetaData(values[1].Object), true, nil
}
