// Package seekindex implements the keyframe-accurate seek indices built up
// by the remuxer: a per-session IDRSampleList of video keyframes and, per
// track, a MediaSegmentInfoList of emitted media-segment ranges (spec §4.5
// "Keyframe Index & Seek").
package seekindex

import (
	"sort"

	"github.com/jmylchreest/flvtransmux/pkg/diskslice"
)

// Keyframe is one entry of the keyframes index (spec §3 "MediaInfo...
// keyframes index {times[], filePositions[]}").
type Keyframe struct {
	Milliseconds float64
	FilePosition int64
}

// NearestKeyframe is the result of a getNearestKeyframe lookup.
type NearestKeyframe struct {
	Index        int
	Milliseconds float64
	FilePosition int64
}

// IDRSampleList is the append-only, time-ordered list of video keyframes
// observed so far in a session. Keyframes always arrive in non-decreasing
// time order within a session, so the backing store only ever needs
// Append — a long-running VOD session's keyframe list can grow to tens of
// thousands of entries, so it is backed by diskslice.DiskSlice to spill to
// disk past the in-memory threshold rather than hold the whole index live.
type IDRSampleList struct {
	ds *diskslice.DiskSlice[Keyframe]
}

// NewIDRSampleList creates an empty keyframe list.
func NewIDRSampleList() (*IDRSampleList, error) {
	ds, err := diskslice.NewWithDefaults[Keyframe]()
	if err != nil {
		return nil, err
	}
	return &IDRSampleList{ds: ds}, nil
}

// Append records a newly-seen keyframe.
func (l *IDRSampleList) Append(k Keyframe) error {
	return l.ds.Append(k)
}

// Len reports the number of recorded keyframes.
func (l *IDRSampleList) Len() int {
	return l.ds.Len()
}

// Reset clears the index, used on player-level seek (spec §4.5 "remuxer
// seek(dts) clears both stashed samples and segment-info lists").
func (l *IDRSampleList) Reset() error {
	return l.ds.Clear()
}

// Close releases any disk-backed storage.
func (l *IDRSampleList) Close() error {
	return l.ds.Close()
}

// GetNearestKeyframe performs a binary search on the recorded keyframe
// times for the entry at or immediately before ms (spec §4.5
// "getNearestKeyframe(ms) performs binary search on keyframesIndex.times[]").
func (l *IDRSampleList) GetNearestKeyframe(ms float64) (NearestKeyframe, bool) {
	n := l.ds.Len()
	if n == 0 {
		return NearestKeyframe{}, false
	}

	idx := sort.Search(n, func(i int) bool {
		kf, err := l.ds.Get(i)
		if err != nil {
			return false
		}
		return kf.Milliseconds > ms
	}) - 1
	if idx < 0 {
		idx = 0
	}

	kf, err := l.ds.Get(idx)
	if err != nil {
		return NearestKeyframe{}, false
	}
	return NearestKeyframe{Index: idx, Milliseconds: kf.Milliseconds, FilePosition: kf.FilePosition}, true
}
