// Package pipeline wires the stash-buffer I/O controller, the FLV demuxer,
// and the fMP4 remuxer into a single open/close/seek session, matching the
// donor's relay.Session shape (internal/relay/manager.go, client.go) but
// driving a transmux pipeline rather than a restreaming one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/flvtransmux/internal/bitstream"
	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/observability"
	"github.com/jmylchreest/flvtransmux/internal/remux"
	"github.com/jmylchreest/flvtransmux/internal/seekindex"
	"github.com/jmylchreest/flvtransmux/internal/stash"
	"github.com/jmylchreest/flvtransmux/pkg/loader"
)

// InitSegment is the consumer-facing wrapping of one ftyp+moov payload
// (spec §6 "InitSegment(type, {type, data:bytes, codec, container,
// mediaDuration})"). This implementation emits one combined segment
// carrying every track present, rather than one per track, matching
// isobmff.GenerateInitSegment's single ftyp+moov-per-session box layout.
type InitSegment struct {
	Data          []byte
	Codec         string
	Container     string
	MediaDuration float64
}

// Statistics is a periodic throughput/health snapshot (spec §6
// "Statistics(info)").
type Statistics struct {
	StashByteStart int64
	StashLen       int
	RecoverCount   int
}

// Session is one open()/close() lifetime over a single media source (spec
// §6 "Consumer → core (control)"). It is not safe for concurrent Feed-path
// reentrancy — per spec §5, exactly one cooperative worker drives it — but
// its control methods (Pause/Resume/Seek/Close) may be called from any
// goroutine.
type Session struct {
	ID uuid.UUID

	cfg    config.Config
	logger *slog.Logger

	controller *stash.Controller
	demuxer    *flv.Demuxer
	remuxer    *remux.Remuxer
	idr        *seekindex.IDRSampleList

	mu            sync.Mutex
	mediaInfo     flv.MediaInfo
	haveMediaInfo bool
	initSent      bool

	// OnMediaInfo fires once all declared tracks' metadata is known.
	OnMediaInfo func(flv.MediaInfo)
	// OnInitSegment fires once the combined ftyp+moov is ready.
	OnInitSegment func(InitSegment)
	// OnMediaSegment fires once per emitted track fragment.
	OnMediaSegment func(remux.MediaSegment)
	// OnLoadingComplete fires when the loader's requested range is fully
	// delivered and the pipeline has nothing further buffered.
	OnLoadingComplete func()
	// OnRecoveredEarlyEof fires after a transparent EarlyEof reconnect.
	OnRecoveredEarlyEof func()
	// OnError surfaces a fatal or warning-level condition.
	OnError func(Error)
	// OnRecommendSeekpoint fires when a requested Seek(ms) had to be
	// rounded to the nearest known keyframe.
	OnRecommendSeekpoint func(ms float64)
}

// NewSession constructs a Session bound to ld. cfg.Workaround.TargetUserAgent
// selects the AAC promotion table the demuxer uses (spec §4.2, §9).
func NewSession(cfg config.Config, ld loader.Loader, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	sessionLogger := observability.WithSession(logger, id.String())

	idr, err := seekindex.NewIDRSampleList()
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating keyframe index: %w", err)
	}

	s := &Session{
		ID:      id,
		cfg:     cfg,
		logger:  sessionLogger,
		demuxer: flv.NewDemuxer(targetUserAgent(cfg.Workaround.TargetUserAgent)),
		remuxer: remux.NewRemuxer(cfg.Remux, cfg.Workaround, observability.WithComponent(sessionLogger, "remux")),
		idr:     idr,
	}

	s.controller = stash.NewController(cfg.Stash, ld, s.onChunk).WithLogger(observability.WithComponent(sessionLogger, "stash"))
	s.controller.OnRecoveredEarlyEof = func() {
		if s.OnRecoveredEarlyEof != nil {
			s.OnRecoveredEarlyEof()
		}
	}
	s.controller.OnError = func(e *stash.Error) {
		s.reportError(Error{Kind: KindTransport, Detail: e.Error()})
	}
	s.controller.OnWarning = func(msg string) {
		sessionLogger.Warn(msg)
	}

	s.demuxer.OnMediaInfo = s.handleMediaInfo
	s.demuxer.OnSamplesAvailable = s.handleSamplesAvailable
	s.demuxer.OnWarning = func(err error) {
		sessionLogger.Warn("demux warning", "error", err)
	}

	s.remuxer.OnInitSegment = s.handleInitSegment
	s.remuxer.OnMediaSegment = func(seg remux.MediaSegment) error {
		s.trackKeyframes(seg)
		if s.OnMediaSegment != nil {
			s.OnMediaSegment(seg)
		}
		return nil
	}

	return s, nil
}

func targetUserAgent(v string) bitstream.UserAgent {
	switch v {
	case "firefox":
		return bitstream.UserAgentFirefox
	case "android":
		return bitstream.UserAgentAndroid
	default:
		return bitstream.UserAgentOther
	}
}

// Open begins fetching source from the beginning (spec §6
// "open(mediaDataSource, config)").
func (s *Session) Open(ctx context.Context, source loader.DataSource) error {
	flushID := ulid.Make().String()
	s.logger.Info("session open", "url", source.URL, "flush_id", flushID)

	s.demuxer.OverrideHasAudio = source.HasAudio
	s.demuxer.OverrideHasVideo = source.HasVideo

	if s.cfg.Stash.MemoryPressureProbeSchedule != "" {
		if err := s.controller.StartMemoryPressureProbe(s.cfg.Stash.MemoryPressureProbeSchedule); err != nil {
			s.logger.Warn("memory pressure probe disabled", "error", err)
		}
	}

	return s.controller.Open(ctx, source, -1)
}

// Close tears the session down: aborts the loader, flushes any stashed
// trailing remux samples, and releases the keyframe index (spec §7 "close()
// is idempotent").
func (s *Session) Close() error {
	s.controller.StopMemoryPressureProbe()
	s.controller.Abort()
	err := s.remuxer.Close()
	if closeErr := s.idr.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Pause implements spec §6 "pause()".
func (s *Session) Pause() {
	s.controller.Pause()
}

// Resume implements spec §6 "resume()".
func (s *Session) Resume(ctx context.Context) error {
	return s.controller.Resume(ctx)
}

// Seek implements spec §4.5's player-level seek: it derives the nearest
// known keyframe from the seek index, resets the remuxer's correction and
// segment-info state, and seeks the transport to the keyframe's byte
// position. If no keyframe has been recorded yet (e.g. a live session with
// no VOD keyframe table), it falls back to byteOffsetHint as supplied by the
// UI layer (spec §4.5 "else range-request starts at the byte offset
// supplied by the UI layer").
func (s *Session) Seek(ctx context.Context, ms float64, byteOffsetHint int64) error {
	nearest, ok := s.idr.GetNearestKeyframe(ms)

	s.remuxer.Seek(int64(ms))

	target := byteOffsetHint
	if ok {
		target = nearest.FilePosition
		if nearest.Milliseconds != ms && s.OnRecommendSeekpoint != nil {
			s.OnRecommendSeekpoint(nearest.Milliseconds)
		}
	}

	return s.controller.Seek(ctx, target)
}

// Statistics returns a point-in-time snapshot of controller state (spec §6
// "Statistics(info)").
func (s *Session) Statistics() Statistics {
	return Statistics{
		StashByteStart: s.controller.StashByteStart(),
		StashLen:       s.controller.StashLen(),
	}
}

// onChunk is the stash.Consumer driving the demuxer (spec §4.1's stash
// protocol: the consumer reports how many leading bytes it absorbed).
func (s *Session) onChunk(chunk []byte, absOffset int64) (int, error) {
	consumed, err := s.demuxer.Feed(chunk, absOffset)
	if err != nil {
		s.reportError(classifyDemuxError(err))
		return consumed, err
	}
	return consumed, nil
}

func (s *Session) handleMediaInfo(info flv.MediaInfo) {
	s.mu.Lock()
	s.mediaInfo = info
	s.haveMediaInfo = true
	s.mu.Unlock()

	for i, ms := range info.Keyframes.Times {
		if i >= len(info.Keyframes.FilePositions) {
			break
		}
		_ = s.idr.Append(seekindex.Keyframe{
			Milliseconds: ms,
			FilePosition: int64(info.Keyframes.FilePositions[i]),
		})
	}

	if s.OnMediaInfo != nil {
		s.OnMediaInfo(info)
	}
}

func (s *Session) handleSamplesAvailable(audio *flv.AudioTrack, video *flv.VideoTrack) {
	if err := s.remuxer.Feed(audio, video); err != nil {
		s.reportError(Error{Kind: KindIllegalState, Detail: err.Error()})
	}
}

func (s *Session) handleInitSegment(data []byte) error {
	s.mu.Lock()
	alreadySent := s.initSent
	s.initSent = true
	info := s.mediaInfo
	s.mu.Unlock()

	if alreadySent {
		return nil
	}
	if s.OnInitSegment != nil {
		s.OnInitSegment(InitSegment{
			Data:          data,
			Codec:         codecString(info),
			Container:     "video/mp4",
			MediaDuration: info.Duration,
		})
	}
	return nil
}

// trackKeyframes appends a live video segment's sync points to the seek
// index, covering live sessions that never declared a static keyframes
// table in onMetaData.
func (s *Session) trackKeyframes(seg remux.MediaSegment) {
	if seg.Type != "video" {
		return
	}
	for _, sp := range seg.Info.SyncPoints {
		if sp.FilePosition < 0 {
			continue
		}
		_ = s.idr.Append(seekindex.Keyframe{
			Milliseconds: float64(sp.PTS),
			FilePosition: sp.FilePosition,
		})
	}
}

func codecString(info flv.MediaInfo) string {
	switch {
	case info.HasVideo && info.HasAudio:
		return info.Video.CodecString + "," + info.Audio.Codec
	case info.HasVideo:
		return info.Video.CodecString
	case info.HasAudio:
		return info.Audio.Codec
	default:
		return ""
	}
}

func (s *Session) reportError(e Error) {
	s.logger.Error("session error", "kind", e.Kind, "detail", e.Detail)
	if s.OnError != nil {
		s.OnError(e)
	}
}

func classifyDemuxError(err error) Error {
	var fe *flv.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case flv.KindCodecUnsupported:
			return Error{Kind: KindCodecUnsupported, Detail: fe.Error()}
		case flv.KindInternal:
			return Error{Kind: KindInternal, Detail: fe.Error()}
		default:
			return Error{Kind: KindFormatError, Detail: fe.Error()}
		}
	}
	return Error{Kind: KindFormatError, Detail: err.Error()}
}
