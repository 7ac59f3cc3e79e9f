// Package loader defines the transport contract an I/O controller drives to
// fetch stream bytes, plus two implementations: an HTTP range/param loader
// and a local-file loader.
package loader

import "context"

// DataSource describes what to load and how (spec §4.1 "open(mediaDataSource,
// config)"; mediaDataSource = {url, type, isLive, cors, withCredentials,
// hasAudio?, hasVideo?, filesize?}).
type DataSource struct {
	URL             string
	IsLive          bool
	CORS            bool
	WithCredentials bool
	HasAudio        *bool
	HasVideo        *bool
	// FileSize is the total byte length, or 0 if unknown (VOD-only).
	FileSize int64
}

// Range is an inclusive byte range request: [From, To]. To == -1 means
// "to end of stream".
type Range struct {
	From int64
	To   int64
}

// ErrorCode enumerates the loader failure categories the I/O controller
// distinguishes (spec §4.1 "EarlyEof recovery", §8 "Failure and recovery").
type ErrorCode string

const (
	ErrorCodeNetwork     ErrorCode = "NETWORK"
	ErrorCodeEarlyEof    ErrorCode = "EARLY_EOF"
	ErrorCodeHTTPStatus  ErrorCode = "HTTP_STATUS"
	ErrorCodeAborted     ErrorCode = "ABORTED"
	ErrorCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// ErrorInfo carries a loader failure back to the controller.
type ErrorInfo struct {
	Code   ErrorCode
	Status int
	Err    error
}

func (e ErrorInfo) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

// Callbacks are invoked by a Loader as the fetch progresses. All fields are
// optional; a nil callback is simply not invoked. Callbacks run on whatever
// goroutine the Loader's fetch loop uses — implementations call them
// sequentially and do not invoke overlapping calls concurrently.
type Callbacks struct {
	// OnContentLengthKnown fires once, as soon as the total byte length of
	// the requested resource is known (e.g. from a Content-Range header).
	OnContentLengthKnown func(length int64)
	// OnURLRedirect fires when the loader was redirected to a different URL.
	OnURLRedirect func(url string)
	// OnDataArrival delivers a chunk at absolute offset absOffset; it does
	// not declare how much of chunk was consumed — that is the stash
	// controller's responsibility when it calls into its own consumer.
	OnDataArrival func(chunk []byte, absOffset int64, totalReceived int64)
	// OnError reports a terminal or recoverable fetch failure.
	OnError func(info ErrorInfo)
	// OnComplete fires when the requested range has been fully delivered.
	OnComplete func(rangeFrom, rangeTo int64)
}

// Loader is the transport contract the I/O controller drives (spec §4.1
// "Loader interface (consumed by I/O controller)").
type Loader interface {
	// Open begins fetching source at range r, invoking cb as data and
	// events arrive. Open returns once the fetch loop has started (or
	// failed to start); delivery happens asynchronously via cb until
	// Abort is called or the range completes.
	Open(ctx context.Context, source DataSource, r Range, cb Callbacks) error

	// Abort cancels any in-flight fetch. Safe to call if nothing is in
	// flight.
	Abort()

	// Destroy releases any resources held by the loader. The loader must
	// not be reused after Destroy.
	Destroy()

	// NeedStashBuffer reports whether the controller should keep the
	// stash buffer active for this loader's chunk delivery pattern.
	NeedStashBuffer() bool

	// CurrentSpeed reports the loader's recent observed throughput in
	// KiB/s, used by the I/O controller's adaptive stash sizing.
	CurrentSpeed() float64
}
