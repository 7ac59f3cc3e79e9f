package stash

// sizingLadder is the fixed KiB ladder observed throughput snaps down to
// before it feeds the stash-size formula (spec §4.1 "Stash sizing").
var sizingLadder = []int{64, 128, 256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096}

const (
	minStashSizeKiB = 64
	maxStashSizeKiB = 8192
	bufferSlack     = 1 << 20 // 1 MiB
)

// snapToLadder returns the nearest-lower ladder value for an observed
// throughput in KiB/s. Speeds below the lowest rung snap to it; speeds at or
// above the top rung snap to it.
func snapToLadder(speedKiBps float64) int {
	snapped := sizingLadder[0]
	for _, rung := range sizingLadder {
		if float64(rung) <= speedKiBps {
			snapped = rung
		} else {
			break
		}
	}
	return snapped
}

// computeStashSizeKiB derives the target stash size in KiB from observed
// throughput, per spec §4.1: live mode uses the snapped ladder value
// directly; VOD mode scales it further and caps at 8192 KiB.
func computeStashSizeKiB(speedKiBps float64, isLive bool) int {
	normalized := snapToLadder(speedKiBps)
	if isLive {
		return normalized
	}

	var size int
	switch {
	case normalized <= 512:
		size = normalized
	case normalized <= 1024:
		size = (normalized * 3) / 2
	default:
		size = normalized * 2
	}
	if size > maxStashSizeKiB {
		size = maxStashSizeKiB
	}
	return size
}

// buffer is the growable, byte-addressable stash (spec §4.1 "growable stash
// buffer"). It tracks stashByteStart, the absolute source offset of its byte
// zero, and never shrinks its backing array within a session.
type buffer struct {
	data           []byte
	stashByteStart int64
	stashSizeBytes int
}

func newBuffer(initialStashSizeBytes int) *buffer {
	return &buffer{
		data:           make([]byte, 0, initialStashSizeBytes+bufferSlack),
		stashSizeBytes: initialStashSizeBytes,
	}
}

// len reports the number of unconsumed stashed bytes.
func (b *buffer) len() int { return len(b.data) }

// bytes returns the unconsumed stash contents. The returned slice is only
// valid until the next call to append/consume/reset.
func (b *buffer) bytes() []byte { return b.data }

// fitsWithoutDispatch reports whether appending chunk would still fit within
// the current target stash size, per the "append and wait" branch of the
// control-flow rule.
func (b *buffer) fitsWithoutDispatch(chunkLen int) bool {
	return b.len()+chunkLen <= b.stashSizeBytes
}

// growIfNeeded doubles capacity (plus slack) until it can hold needed bytes,
// per spec §4.1 "buffer grows (doubling + 1 MiB slack) ... never shrinks".
func (b *buffer) growIfNeeded(needed int) {
	if cap(b.data) >= needed {
		return
	}
	newCap := cap(b.data)
	if newCap == 0 {
		newCap = b.stashSizeBytes + bufferSlack
	}
	for newCap < needed {
		newCap = newCap*2 + bufferSlack
	}
	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	b.data = grown
}

// append adds chunk to the tail of the stash, growing the backing array if
// required. absOffsetOfChunk is the absolute source offset of chunk[0]; if
// the stash is currently empty, stashByteStart is reset to it.
func (b *buffer) append(chunk []byte, absOffsetOfChunk int64) {
	if len(b.data) == 0 {
		b.stashByteStart = absOffsetOfChunk
	}
	b.growIfNeeded(len(b.data) + len(chunk))
	b.data = append(b.data, chunk...)
}

// consume drops the first n bytes, advancing stashByteStart.
func (b *buffer) consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.stashByteStart += int64(len(b.data))
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
	b.stashByteStart += int64(n)
}

// reset clears the stash entirely, pointing stashByteStart at newAbsOffset.
// Used on seek and on internal-seek with dropUnconsumed=true.
func (b *buffer) reset(newAbsOffset int64) {
	b.data = b.data[:0]
	b.stashByteStart = newAbsOffset
}

// setTargetSize updates the stash-size target used by fitsWithoutDispatch;
// it never shrinks the backing array, only the logical threshold.
func (b *buffer) setTargetSize(sizeBytes int) {
	b.stashSizeBytes = sizeBytes
}
