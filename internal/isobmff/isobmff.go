// Package isobmff builds the ISO Base Media File Format byte sequences
// consumed by a media-source extension: the ftyp+moov initialization
// segment and the moof+mdat media segments that follow it. It wraps
// mediacommon's fmp4/mp4 box marshaler rather than writing box bytes by
// hand, so the wire layout of every box stays library-verified.
package isobmff

import (
	"bytes"
	"fmt"
	"io"
)

// seekableBuffer adapts a bytes.Buffer into the io.WriteSeeker the fmp4
// marshaler writes through (it seeks back to patch box sizes once a box's
// children are known).
type seekableBuffer struct {
	buf bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.buf.Len() {
		s.buf.Write(make([]byte, int(s.pos)-s.buf.Len()))
	}

	var n int
	var err error
	if int(s.pos) == s.buf.Len() {
		n, err = s.buf.Write(p)
	} else {
		b := s.buf.Bytes()
		n = copy(b[s.pos:], p)
		if n < len(p) {
			var m int
			m, err = s.buf.Write(p[n:])
			n += m
		}
	}
	s.pos += int64(n)
	return n, err
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.buf.Len()) + offset
	default:
		return 0, fmt.Errorf("isobmff: invalid seek whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("isobmff: negative seek position %d", newPos)
	}
	s.pos = newPos
	return newPos, nil
}

// marshaler is implemented by fmp4.Init and fmp4.Part: both take an
// io.WriteSeeker rather than returning bytes directly.
type marshaler interface {
	Marshal(w io.WriteSeeker) error
}

func marshalToBytes(m marshaler) ([]byte, error) {
	w := &seekableBuffer{}
	if err := m.Marshal(w); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}
