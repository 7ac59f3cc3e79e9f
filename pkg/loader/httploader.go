package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/idna"
)

// HTTPConfig configures an HTTPLoader.
type HTTPConfig struct {
	// SeekType selects how a byte range is encoded: "range" uses the HTTP
	// Range header; "param" rewrites the URL with query parameters (spec
	// §4.1 "Seek-handler variants").
	SeekType string
	// ParamStart/ParamEnd name the query parameters used when SeekType is
	// "param" (spec's seekParamStart/seekParamEnd).
	ParamStart string
	ParamEnd string
	// RangeLoadZeroStart forces byte-range requests to always start at 0
	// (some origins reject any other Range value on the first request).
	RangeLoadZeroStart bool
	// UserAgent is sent as the User-Agent request header.
	UserAgent string
	// Client is the underlying HTTP client. If nil, a new http.Client is
	// used. Open installs a CheckRedirect hook on it to track redirects.
	Client *http.Client
	// ChunkSize bounds how much is read per OnDataArrival callback.
	ChunkSize int
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		SeekType:  "range",
		ParamStart: "bstart",
		ParamEnd:   "bend",
		UserAgent:  "flvtransmuxd/1.0",
		ChunkSize:  64 * 1024,
		Logger:     slog.Default(),
	}
}

// HTTPLoader implements Loader over net/http, supporting both Range-header
// and query-parameter byte-range encodings (spec §4.1).
type HTTPLoader struct {
	cfg HTTPConfig

	mu       sync.Mutex
	cancel   context.CancelFunc
	aborted  atomic.Bool

	speedMu     sync.Mutex
	speedWindow []speedSample
	speedKiBps  atomic.Value // float64
}

type speedSample struct {
	bytes uint64
	at    time.Time
}

// NewHTTPLoader constructs an HTTPLoader.
func NewHTTPLoader(cfg HTTPConfig) *HTTPLoader {
	if cfg.SeekType == "" {
		cfg.SeekType = "range"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &HTTPLoader{cfg: cfg}
	l.speedKiBps.Store(float64(0))
	return l
}

// Open implements Loader.
func (l *HTTPLoader) Open(ctx context.Context, source DataSource, r Range, cb Callbacks) error {
	reqURL, err := l.buildURL(source.URL, r)
	if err != nil {
		return fmt.Errorf("building request URL: %w", err)
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	l.aborted.Store(false)

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("creating request: %w", err)
	}
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}
	if l.cfg.SeekType != "param" {
		req.Header.Set("Range", rangeHeaderValue(r, l.cfg.RangeLoadZeroStart))
	}
	if source.WithCredentials {
		req.Header.Set("Access-Control-Allow-Credentials", "true")
	}

	client := l.cfg.Client
	redirectedTo := ""
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		redirectedTo = req.URL.String()
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		if cb.OnError != nil {
			cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
		}
		return err
	}

	if redirectedTo != "" && cb.OnURLRedirect != nil {
		cb.OnURLRedirect(redirectedTo)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		cancel()
		info := ErrorInfo{Code: ErrorCodeHTTPStatus, Status: resp.StatusCode}
		if cb.OnError != nil {
			cb.OnError(info)
		}
		return info
	}

	if total := contentLength(resp); total > 0 && cb.OnContentLengthKnown != nil {
		cb.OnContentLengthKnown(total)
	}

	go l.pump(fetchCtx, resp.Body, r, cb)
	return nil
}

func (l *HTTPLoader) pump(ctx context.Context, body io.ReadCloser, r Range, cb Callbacks) {
	defer body.Close()

	buf := make([]byte, l.cfg.ChunkSize)
	var totalReceived int64
	absOffset := r.From

	for {
		if l.aborted.Load() {
			if cb.OnError != nil {
				cb.OnError(ErrorInfo{Code: ErrorCodeAborted})
			}
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			totalReceived += int64(n)
			l.recordSpeed(uint64(n))
			if cb.OnDataArrival != nil {
				cb.OnDataArrival(chunk, absOffset, totalReceived)
			}
			absOffset += int64(n)
		}

		if err != nil {
			if err == io.EOF {
				if r.To >= 0 && absOffset-1 < r.To {
					if cb.OnError != nil {
						cb.OnError(ErrorInfo{Code: ErrorCodeEarlyEof, Err: err})
					}
					return
				}
				if cb.OnComplete != nil {
					cb.OnComplete(r.From, absOffset-1)
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			if cb.OnError != nil {
				cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
			}
			return
		}
	}
}

// recordSpeed maintains a 5-second sliding window of bytes received, used
// to compute CurrentSpeed for the stash buffer's adaptive sizing.
func (l *HTTPLoader) recordSpeed(n uint64) {
	now := time.Now()
	l.speedMu.Lock()
	l.speedWindow = append(l.speedWindow, speedSample{bytes: n, at: now})
	cutoff := now.Add(-5 * time.Second)
	i := 0
	for i < len(l.speedWindow) && l.speedWindow[i].at.Before(cutoff) {
		i++
	}
	l.speedWindow = l.speedWindow[i:]

	var total uint64
	var span time.Duration
	if len(l.speedWindow) > 0 {
		total = 0
		for _, s := range l.speedWindow {
			total += s.bytes
		}
		span = now.Sub(l.speedWindow[0].at)
	}
	l.speedMu.Unlock()

	if span <= 0 {
		return
	}
	kibps := float64(total) / 1024 / span.Seconds()
	l.speedKiBps.Store(kibps)
}

// CurrentSpeed implements Loader.
func (l *HTTPLoader) CurrentSpeed() float64 {
	return l.speedKiBps.Load().(float64)
}

// NeedStashBuffer implements Loader: HTTP delivery is chunked unpredictably
// by the transport, so the controller should always stash.
func (l *HTTPLoader) NeedStashBuffer() bool { return true }

// Abort implements Loader.
func (l *HTTPLoader) Abort() {
	l.aborted.Store(true)
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Destroy implements Loader.
func (l *HTTPLoader) Destroy() {
	l.Abort()
}

func (l *HTTPLoader) buildURL(rawURL string, r Range) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if err := normalizeURLHost(u); err != nil {
		return "", fmt.Errorf("normalizing origin host: %w", err)
	}

	if l.cfg.SeekType != "param" {
		return u.String(), nil
	}

	q := u.Query()
	q.Set(l.cfg.ParamStart, strconv.FormatInt(r.From, 10))
	if r.To >= 0 {
		q.Set(l.cfg.ParamEnd, strconv.FormatInt(r.To, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// normalizeURLHost rewrites u's host to its ASCII (Punycode) form so
// internationalized origin hostnames resolve the same way regardless of how
// the caller spelled them.
func normalizeURLHost(u *url.URL) error {
	host := u.Hostname()
	if host == "" {
		return nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// Not every host is IDN-eligible (e.g. bare IP literals); leave it
		// as-is rather than failing the request.
		return nil
	}
	if port := u.Port(); port != "" {
		u.Host = ascii + ":" + port
	} else {
		u.Host = ascii
	}
	return nil
}

func rangeHeaderValue(r Range, zeroStart bool) string {
	from := r.From
	if zeroStart {
		from = 0
	}
	if r.To >= 0 {
		return fmt.Sprintf("bytes=%d-%d", from, r.To)
	}
	return fmt.Sprintf("bytes=%d-", from)
}

// contentLength derives the total resource size from Content-Range (for
// 206 Partial Content responses) or Content-Length.
func contentLength(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 && idx+1 < len(cr) {
			if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return total
			}
		}
	}
	return resp.ContentLength
}
