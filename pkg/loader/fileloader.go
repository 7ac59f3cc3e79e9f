package loader

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// FileLoader implements Loader over a local file, used for offline testing
// of the pipeline without standing up an HTTP origin.
type FileLoader struct {
	chunkSize int
	aborted   atomic.Bool
}

// NewFileLoader constructs a FileLoader. chunkSize bounds how much is read
// per OnDataArrival callback; 0 selects a 64KiB default.
func NewFileLoader(chunkSize int) *FileLoader {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &FileLoader{chunkSize: chunkSize}
}

// Open implements Loader. source.URL is treated as a filesystem path,
// optionally prefixed with "file://".
func (l *FileLoader) Open(ctx context.Context, source DataSource, r Range, cb Callbacks) error {
	path := strings.TrimPrefix(source.URL, "file://")

	f, err := os.Open(path)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
		}
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		if cb.OnError != nil {
			cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
		}
		return err
	}

	if cb.OnContentLengthKnown != nil {
		cb.OnContentLengthKnown(info.Size())
	}

	if r.From > 0 {
		if _, err := f.Seek(r.From, io.SeekStart); err != nil {
			f.Close()
			if cb.OnError != nil {
				cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
			}
			return err
		}
	}

	l.aborted.Store(false)
	go l.pump(ctx, f, r, cb)
	return nil
}

func (l *FileLoader) pump(ctx context.Context, f *os.File, r Range, cb Callbacks) {
	defer f.Close()

	buf := make([]byte, l.chunkSize)
	absOffset := r.From
	var totalReceived int64

	for {
		if l.aborted.Load() {
			if cb.OnError != nil {
				cb.OnError(ErrorInfo{Code: ErrorCodeAborted})
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		toRead := len(buf)
		if r.To >= 0 {
			remaining := r.To - absOffset + 1
			if remaining <= 0 {
				if cb.OnComplete != nil {
					cb.OnComplete(r.From, absOffset-1)
				}
				return
			}
			if int64(toRead) > remaining {
				toRead = int(remaining)
			}
		}

		n, err := f.Read(buf[:toRead])
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			totalReceived += int64(n)
			if cb.OnDataArrival != nil {
				cb.OnDataArrival(chunk, absOffset, totalReceived)
			}
			absOffset += int64(n)
		}

		if err != nil {
			if err == io.EOF {
				if cb.OnComplete != nil {
					cb.OnComplete(r.From, absOffset-1)
				}
				return
			}
			if cb.OnError != nil {
				cb.OnError(ErrorInfo{Code: ErrorCodeNetwork, Err: err})
			}
			return
		}
	}
}

// Abort implements Loader.
func (l *FileLoader) Abort() { l.aborted.Store(true) }

// Destroy implements Loader.
func (l *FileLoader) Destroy() { l.Abort() }

// NeedStashBuffer implements Loader: file reads are delivered in
// caller-chosen chunk sizes unrelated to FLV tag boundaries, so stashing
// is still required.
func (l *FileLoader) NeedStashBuffer() bool { return true }

// CurrentSpeed implements Loader. Local file reads aren't network-bound;
// report 0 so the stash controller falls back to its default sizing.
func (l *FileLoader) CurrentSpeed() float64 { return 0 }
