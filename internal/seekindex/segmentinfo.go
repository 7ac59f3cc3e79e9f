package seekindex

import "sort"

// SyncPoint is one keyframe sync point captured inside a media segment's
// info (spec §4.4 "info capturing ... all keyframe sync-points").
type SyncPoint struct {
	DTS          int64
	PTS          int64
	FilePosition int64
}

// MediaSegmentInfo describes one emitted media segment's DTS/PTS range
// (spec §4.4 "Build info capturing first/last sample DTS/PTS, original
// ranges, and all keyframe sync-points").
type MediaSegmentInfo struct {
	BeginDTS         int64
	EndDTS           int64
	BeginPTS         int64
	EndPTS           int64
	OriginalBeginDTS int64
	OriginalEndDTS   int64
	FirstSample      SyncPoint
	LastSample       SyncPoint
	SyncPoints       []SyncPoint
}

// MediaSegmentInfoList is the per-track, originalBeginDTS-ordered list of
// emitted segment ranges (spec §3 "MediaSegmentInfoList ... sorted by
// originalBeginDts"). Segments are emitted in increasing-time order during
// normal playback, so appends land at the tail almost always; the list
// still supports out-of-order insertion via binary search for
// correctness, and caches the last append position as a fast path so the
// common case never pays for a search.
type MediaSegmentInfoList struct {
	entries    []MediaSegmentInfo
	lastAppend int
}

// NewMediaSegmentInfoList creates an empty list.
func NewMediaSegmentInfoList() *MediaSegmentInfoList {
	return &MediaSegmentInfoList{lastAppend: -1}
}

// Insert adds info in originalBeginDTS order.
func (l *MediaSegmentInfoList) Insert(info MediaSegmentInfo) {
	n := len(l.entries)

	// Fast path: new entry continues strictly after the last appended one,
	// which holds for every batch processed in arrival order.
	if l.lastAppend == n-1 && (n == 0 || info.OriginalBeginDTS >= l.entries[n-1].OriginalBeginDTS) {
		l.entries = append(l.entries, info)
		l.lastAppend = len(l.entries) - 1
		return
	}

	idx := sort.Search(n, func(i int) bool {
		return l.entries[i].OriginalBeginDTS > info.OriginalBeginDTS
	})
	l.entries = append(l.entries, MediaSegmentInfo{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = info
	l.lastAppend = idx
}

// Len reports the number of recorded segment infos.
func (l *MediaSegmentInfoList) Len() int {
	return len(l.entries)
}

// Last returns the tail entry (the one with the greatest OriginalBeginDTS),
// if any.
func (l *MediaSegmentInfoList) Last() (MediaSegmentInfo, bool) {
	if len(l.entries) == 0 {
		return MediaSegmentInfo{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// LastBefore locates the last entry whose OriginalBeginDTS is <= dts (spec
// §4.4 "locate the last sample before firstSampleOriginalDts").
func (l *MediaSegmentInfoList) LastBefore(dts int64) (MediaSegmentInfo, bool) {
	n := len(l.entries)
	idx := sort.Search(n, func(i int) bool {
		return l.entries[i].OriginalBeginDTS > dts
	}) - 1
	if idx < 0 {
		return MediaSegmentInfo{}, false
	}
	return l.entries[idx], true
}

// Reset clears the list, used on player-level seek (spec §4.5 "remuxer
// seek(dts) clears both stashed samples and segment-info lists") and on
// internal backward-jump recovery.
func (l *MediaSegmentInfoList) Reset() {
	l.entries = nil
	l.lastAppend = -1
}
