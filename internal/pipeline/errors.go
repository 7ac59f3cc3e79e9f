package pipeline

// Kind classifies a pipeline-level failure surfaced to the consumer (spec
// §7 "errorType"), collapsing the transport/demux/remux taxonomies into one
// consumer-facing enum.
type Kind string

const (
	KindTransport        Kind = "TRANSPORT"
	KindFormatError      Kind = "FORMAT_ERROR"
	KindCodecUnsupported Kind = "CODEC_UNSUPPORTED"
	KindInternal         Kind = "INTERNAL"
	KindIllegalState     Kind = "ILLEGAL_STATE"
)

// Error is the consumer-facing (errorType, errorDetail) pair (spec §6 "Core
// → consumer (events)... Error(kind, detail, info)").
type Error struct {
	Kind   Kind
	Detail string
}

func (e Error) Error() string {
	return string(e.Kind) + ": " + e.Detail
}
