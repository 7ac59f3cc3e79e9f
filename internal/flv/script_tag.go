package flv

import "github.com/jmylchreest/flvtransmux/internal/amf"

// handleScriptTag decodes an AMF0 script tag and, if it carries onMetaData,
// extracts the fields spec §4.2 lists. Any other script event is ignored;
// unknown or mis-typed onMetaData fields are warnings, not failures (that
// leniency lives in amf.ParseOnMetaData itself).
func (d *Demuxer) handleScriptTag(body []byte) error {
	md, ok, err := amf.OnMetaDataFromScriptTag(body)
	if err != nil {
		return formatError("parsing AMF script tag: %w", err)
	}
	if !ok {
		return nil
	}

	if d.OverrideHasAudio == nil && md.HasAudio != nil {
		d.declaredHasAudio = *md.HasAudio
	}
	if d.OverrideHasVideo == nil && md.HasVideo != nil {
		d.declaredHasVideo = *md.HasVideo
	}

	if md.Duration > 0 {
		d.mediaDuration = md.Duration * float64(trackTimescale)
	}

	// Entry 0 of the keyframes arrays describes the AVC sequence header, not
	// a real keyframe (spec §4.2 "after stripping entry 0").
	if len(md.KeyframeTimes) > 1 && len(md.KeyframeFilePositions) > 1 {
		d.keyframes = KeyframesIndex{
			Times:         append([]float64(nil), md.KeyframeTimes[1:]...),
			FilePositions: append([]float64(nil), md.KeyframeFilePositions[1:]...),
		}
	}

	return nil
}
