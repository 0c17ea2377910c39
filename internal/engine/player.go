// Package engine implements the chunked streaming playback engine: an
// explicitly constructed player that fetches overlapping audio chunks,
// buffers and crossfades them, and exposes an event-driven state machine to
// whatever UI composes it. There is no ambient global player; callers own the
// instance they create.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/buffer"
	"github.com/mkaleva/chunkcast/internal/cache"
	"github.com/mkaleva/chunkcast/internal/config"
	"github.com/mkaleva/chunkcast/internal/fetch"
	"github.com/mkaleva/chunkcast/internal/timing"
	"github.com/rs/zerolog/log"
)

const (
	// timeUpdateInterval bounds timeupdate cadence to 10 events/second.
	timeUpdateInterval = 100 * time.Millisecond
	// lookaheadLead is how much buffered audio ahead of the playhead the
	// engine tries to keep. One full chunk keeps exactly one look-ahead fetch
	// in flight during steady playback.
	lookaheadLead = 15.0
	// fetchFailCooldown throttles look-ahead re-requests after an exhausted
	// retry cycle so a dead backend is not hammered.
	fetchFailCooldown = 2 * time.Second
)

// Settings is the enhancement configuration pushed into the player by the
// application. The player never mutates the caller's value.
type Settings struct {
	Enabled   bool
	Preset    string
	Intensity float64
}

// effectivePreset is the preset name sent to the backend; disabled
// enhancement requests the unprocessed stream.
func (s Settings) effectivePreset() string {
	if !s.Enabled {
		return ""
	}
	return s.Preset
}

// fetchIntent records why a fetch generation was issued, so the supervisor
// can route its result (or discard it once superseded).
type fetchIntent struct {
	seek    *seekOp
	sw      *presetSwitch
	initial bool
}

type seekOp struct {
	gen    uint64
	target float64
	resume State
}

// Option configures a Player at construction.
type Option func(*Player)

// WithSink substitutes the audio output. Tests use a manually pumped sink.
func WithSink(s Sink) Option {
	return func(p *Player) { p.sink = s }
}

// WithDecoder substitutes the chunk payload decoder.
func WithDecoder(d DecodeFunc) Option {
	return func(p *Player) { p.decodeOverride = d }
}

// WithEnvelope selects the crossfade gain curve.
func WithEnvelope(env timing.Envelope) Option {
	return func(p *Player) { p.env = env }
}

// WithChunkCache enables the disk chunk cache.
func WithChunkCache(c *cache.Cache) Option {
	return func(p *Player) { p.chunkCache = c }
}

// withSupportProbe overrides the audio capability check in tests.
func withSupportProbe(probe func() bool) Option {
	return func(p *Player) { p.supported = probe }
}

// Player is the public playback facade. All mutating operations validate
// against the state machine; observers subscribe through On and receive
// read-only event snapshots.
type Player struct {
	client     *api.Client
	fetchCfg   config.Fetch
	chunkCache *cache.Cache
	env        timing.Envelope
	sink       Sink
	supported  func() bool

	decodeOverride DecodeFunc

	bus *eventBus

	mu          sync.Mutex
	state       State
	destroyed   bool
	session     uuid.UUID
	track       *api.TrackMetadata
	buf         *buffer.Manager
	mix         *mixer
	fetcher     *fetch.Fetcher
	decode      DecodeFunc
	settings    Settings
	lastErr     error
	sinkStarted bool

	pending      map[uint64]fetchIntent
	appendSignal chan struct{}

	activeSeek   *seekOp
	seekGen      uint64
	activeSwitch *presetSwitch
	switchGen    uint64

	lookaheadPending bool
	lastFetchFail    time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPlayer creates a player over the given backend client. The zero
// configuration plays with the default preset at default volume.
func NewPlayer(client *api.Client, fetchCfg config.Fetch, settings Settings, opts ...Option) *Player {
	p := &Player{
		client:    client,
		fetchCfg:  fetchCfg,
		env:       timing.EnvelopeEqualPower,
		supported: IsSupported,
		settings:  settings,
		state:     StateIdle,
		bus:       newEventBus(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = newSpeakerSink(config.DefaultVolume)
	}
	return p
}

// On subscribes a handler to an event type and returns its unsubscribe
// function. Handlers run synchronously and must not block.
func (p *Player) On(t EventType, h Handler) func() {
	return p.bus.on(t, h)
}

// State returns the current playback state snapshot.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the playhead in seconds, as observed from the audio clock.
func (p *Player) Position() float64 {
	p.mu.Lock()
	mix := p.mix
	p.mu.Unlock()

	if mix == nil {
		return 0
	}
	return mix.Position()
}

// Track returns the stream metadata of the active session, or nil.
func (p *Player) Track() *api.TrackMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return nil
	}
	meta := *p.track
	return &meta
}

// Settings returns the enhancement settings the player currently reflects.
func (p *Player) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetVolume applies an output level in percent.
func (p *Player) SetVolume(percent int) {
	p.sink.SetVolume(config.ClampVolume(percent))
}

func (p *Player) setStateLocked(s State) (Event, bool) {
	if p.state == s {
		return Event{}, false
	}
	old := p.state
	p.state = s
	log.Debug().Str("old", old.String()).Str("new", s.String()).Msg("Player state changed")
	return Event{Type: EventStateChange, Session: p.session, OldState: old, NewState: s}, true
}

func (p *Player) emit(ev Event, ok bool) {
	if ok {
		p.bus.emit(ev)
	}
}

// Initialize starts a fresh logical session for a track: fetches and
// validates stream metadata, buffers the opening chunk, and leaves the player
// Ready. Any previous session is torn down and replaced. Fails without
// partially starting when the runtime has no audio output.
func (p *Player) Initialize(ctx context.Context, trackID string) error {
	if !p.supported() {
		return ErrUnsupported
	}

	p.teardownSession()

	p.mu.Lock()
	p.destroyed = false
	p.session = uuid.New()
	p.lastErr = nil
	ev, ok := p.setStateLocked(StateLoading)
	session := p.session
	p.mu.Unlock()
	p.emit(ev, ok)

	log.Debug().Str("track", trackID).Str("session", session.String()).Msg("Initializing stream")

	meta, err := p.client.GetTrackMetadata(ctx, trackID)
	if err != nil {
		return p.failInitialize(fmt.Errorf("failed to initialize track %s: %w", trackID, err))
	}

	decode := p.decodeOverride
	if decode == nil {
		decode = newMP3Decoder(meta.SampleRate)
	}

	p.mu.Lock()
	p.track = meta
	p.buf = buffer.NewManager(*meta)
	p.mix = newMixer(p.buf, p.env)
	p.mix.onUnderrun = p.handleUnderrun
	p.mix.onEnd = p.handleStreamEnd
	p.decode = decode
	p.fetcher = fetch.NewFetcher(p.client, p.fetchCfg, p.chunkCache)
	p.pending = make(map[uint64]fetchIntent)
	p.appendSignal = make(chan struct{})
	p.activeSeek = nil
	p.activeSwitch = nil
	p.lookaheadPending = false
	p.sinkStarted = false
	p.stop = make(chan struct{})
	stop := p.stop
	fetcher := p.fetcher
	preset := p.settings.effectivePreset()

	gen := fetcher.Request(context.Background(), fetch.SlotCurrent, meta.TrackID, 0, preset)
	p.pending[gen] = fetchIntent{initial: true}
	if meta.Duration > meta.ChunkInterval {
		gen = fetcher.Request(context.Background(), fetch.SlotLookahead, meta.TrackID, meta.ChunkInterval, preset)
		p.pending[gen] = fetchIntent{}
		p.lookaheadPending = true
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.supervise(stop, fetcher)

	if err := p.waitCovered(ctx, 0, stop); err != nil {
		return err
	}

	p.mu.Lock()
	ev, ok = p.setStateLocked(StateReady)
	p.mu.Unlock()
	p.emit(ev, ok)
	return nil
}

func (p *Player) failInitialize(err error) error {
	p.mu.Lock()
	p.lastErr = err
	ev, ok := p.setStateLocked(StateError)
	session := p.session
	p.mu.Unlock()
	p.emit(ev, ok)
	p.bus.emit(Event{Type: EventError, Session: session, Err: err, Fatal: true})
	return err
}

// waitCovered blocks until the buffer covers t, the session dies, or ctx
// expires.
func (p *Player) waitCovered(ctx context.Context, t float64, stop <-chan struct{}) error {
	for {
		p.mu.Lock()
		sig := p.appendSignal
		buf := p.buf
		state := p.state
		lastErr := p.lastErr
		p.mu.Unlock()

		if state == StateError {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("stream entered error state")
		}
		if buf != nil && buf.Covers(t) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrNotInitialized
		case <-sig:
		}
	}
}

// Play starts or resumes playback. Idempotent while already playing.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.destroyed || p.track == nil {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	switch p.state {
	case StatePlaying:
		p.mu.Unlock()
		return nil
	case StateReady, StatePaused:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("cannot play from %s: %w", state, ErrInvalidTransition)
	}

	rate := p.track.SampleRate
	mix := p.mix
	started := p.sinkStarted
	p.sinkStarted = true
	ev, ok := p.setStateLocked(StatePlaying)
	p.mu.Unlock()
	p.emit(ev, ok)

	if !started {
		if err := p.sink.Start(rate, mix); err != nil {
			p.mu.Lock()
			p.sinkStarted = false
			p.lastErr = err
			errEv, errOK := p.setStateLocked(StateError)
			session := p.session
			p.mu.Unlock()
			p.emit(errEv, errOK)
			p.bus.emit(Event{Type: EventError, Session: session, Err: err, Fatal: true})
			return err
		}
	} else {
		p.sink.SetPaused(false)
	}

	return nil
}

// Pause suspends playback. Idempotent while already paused: the second call
// changes nothing and emits nothing.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.destroyed || p.track == nil {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	switch p.state {
	case StatePaused:
		p.mu.Unlock()
		return nil
	case StatePlaying:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("cannot pause from %s: %w", state, ErrInvalidTransition)
	}

	ev, ok := p.setStateLocked(StatePaused)
	p.mu.Unlock()

	p.sink.SetPaused(true)
	p.emit(ev, ok)
	return nil
}

// Seek moves the playhead to t, clamped to [0, duration]. A seek into a
// buffered region settles immediately; otherwise the engine re-buffers from
// the chunk covering t and settles asynchronously. A newer seek supersedes an
// unsettled one; the superseded fetch never applies its data.
func (p *Player) Seek(t float64) error {
	p.mu.Lock()
	if p.destroyed || p.track == nil || p.fetcher == nil {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	switch p.state {
	case StatePlaying, StatePaused, StateReady, StateSeeking, StateLoading, StateSwitchingPreset:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("cannot seek from %s: %w", state, ErrInvalidTransition)
	}

	track := *p.track
	if t < 0 {
		t = 0
	}
	if t > track.Duration {
		t = track.Duration
	}

	// Preserve the original pre-seek state across superseding seeks. A seek
	// landing during a preset switch wins: the switch is abandoned and the
	// player resumes into the switch's pre-switch state.
	resume := p.state
	if p.activeSeek != nil {
		resume = p.activeSeek.resume
	}
	if p.activeSwitch != nil {
		resume = p.activeSwitch.resume
	}
	if resume == StateSeeking || resume == StateLoading || resume == StateReady || resume == StateSwitchingPreset {
		resume = StatePaused
		if p.state == StatePlaying {
			resume = StatePlaying
		}
	}
	p.cancelSwitchLocked()

	// Seeking to the stream end parks the player paused at the duration; no
	// chunk exists to fetch there.
	end := t >= track.Duration
	if end {
		resume = StatePaused
	}

	// A buffered target settles in place.
	if p.buf.Covers(t) || end {
		p.activeSeek = nil
		p.mix.SetPosition(t)
		seekEv, seekOK := p.setStateLocked(StateSeeking)
		settleEv, settleOK := p.setStateLocked(resume)
		session := p.session
		sinkLive := p.sinkStarted
		p.mu.Unlock()

		if end && sinkLive {
			p.sink.SetPaused(true)
		}
		p.emit(seekEv, seekOK)
		p.emit(settleEv, settleOK)
		p.bus.emit(Event{Type: EventTimeUpdate, Session: session, Position: t})
		return nil
	}

	p.seekGen++
	op := &seekOp{gen: p.seekGen, target: t, resume: resume}
	p.activeSeek = op

	// Abandon everything aimed at the old position before re-buffering.
	p.fetcher.CancelAll()
	p.pending = make(map[uint64]fetchIntent)
	p.lookaheadPending = false
	p.buf.Reset()
	p.mix.SetPosition(t)

	start := timing.ChunkStart(t, track.ChunkInterval)
	gen := p.fetcher.Request(context.Background(), fetch.SlotCurrent, track.TrackID, start, p.settings.effectivePreset())
	p.pending[gen] = fetchIntent{seek: op}

	ev, ok := p.setStateLocked(StateSeeking)
	p.mu.Unlock()

	p.emit(ev, ok)
	log.Debug().Float64("target", t).Float64("chunk", start).Msg("Seeking into unbuffered region")
	return nil
}

// UpdateSettings pushes a new enhancement configuration into the player.
// Intensity changes apply immediately; preset or enabled changes are routed
// through the preset switch path so playback never glitches.
func (p *Player) UpdateSettings(s Settings) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	s.Intensity = config.ClampIntensity(s.Intensity)
	oldEffective := p.settings.effectivePreset()
	p.settings.Intensity = s.Intensity
	p.settings.Enabled = s.Enabled
	if s.Preset != "" {
		p.settings.Preset = s.Preset
	}
	newEffective := p.settings.effectivePreset()
	state := p.state
	p.mu.Unlock()

	if newEffective == oldEffective {
		return nil
	}
	if state != StatePlaying && state != StatePaused {
		// Not audible yet; the next fetch simply uses the new preset.
		return nil
	}
	return p.switchTo(newEffective)
}

// Destroy tears the player down: cancels in-flight fetches, releases buffers,
// and detaches all listeners. Idempotent; every other method fails with
// ErrNotInitialized afterwards until a fresh Initialize.
func (p *Player) Destroy() {
	p.mu.Lock()
	alreadyDestroyed := p.destroyed
	p.destroyed = true
	ev, ok := p.setStateLocked(StateIdle)
	p.mu.Unlock()

	if alreadyDestroyed {
		return
	}

	p.teardownSession()
	p.sink.Clear()
	p.emit(ev, ok)
	p.bus.clear()

	p.mu.Lock()
	p.track = nil
	p.buf = nil
	p.mix = nil
	p.mu.Unlock()

	log.Debug().Msg("Player destroyed")
}

// teardownSession stops the supervisor and fetcher of the current session, if
// any. Safe to call repeatedly.
func (p *Player) teardownSession() {
	p.mu.Lock()
	stop := p.stop
	fetcher := p.fetcher
	p.stop = nil
	p.fetcher = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if fetcher != nil {
		fetcher.Close()
	}
	p.wg.Wait()
}

// supervise is the per-session orchestration loop: it routes fetch results,
// paces timeupdate events, schedules look-ahead fetches, and evicts stale
// buffer ranges.
func (p *Player) supervise(stop <-chan struct{}, fetcher *fetch.Fetcher) {
	defer p.wg.Done()

	ticker := time.NewTicker(timeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case res := <-fetcher.Results():
			p.handleResult(res)
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Player) tick() {
	p.mu.Lock()
	if p.mix == nil {
		p.mu.Unlock()
		return
	}
	state := p.state
	mix := p.mix
	buf := p.buf
	session := p.session
	p.mu.Unlock()

	pos := mix.Position()

	if state == StatePlaying {
		p.bus.emit(Event{Type: EventTimeUpdate, Session: session, Position: pos})
		buf.Evict(pos)
	}

	if state == StatePlaying || state == StateLoading {
		p.scheduleLookahead(pos)
	}
}

// scheduleLookahead keeps the buffered edge at least one chunk ahead of the
// playhead, with one look-ahead fetch in flight at a time.
func (p *Player) scheduleLookahead(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fetcher == nil || p.track == nil || p.buf == nil || p.lookaheadPending || p.activeSeek != nil || p.activeSwitch != nil {
		return
	}
	if time.Since(p.lastFetchFail) < fetchFailCooldown {
		return
	}

	edgeSeq, ok := p.buf.EdgeSequence()
	if !ok {
		return
	}

	track := *p.track
	nextStart := float64(edgeSeq+1) * track.ChunkInterval
	if nextStart >= track.Duration {
		return // Final chunk buffered
	}
	if p.buf.BufferedUntil()-pos >= lookaheadLead {
		return
	}

	gen := p.fetcher.Request(context.Background(), fetch.SlotLookahead, track.TrackID, nextStart, p.settings.effectivePreset())
	p.pending[gen] = fetchIntent{}
	p.lookaheadPending = true
}

// handleResult routes one fetch outcome. Results whose generation is no
// longer pending were superseded and are discarded untouched.
func (p *Player) handleResult(res fetch.Result) {
	p.mu.Lock()
	intent, known := p.pending[res.Generation]
	delete(p.pending, res.Generation)
	if known && res.Slot == fetch.SlotLookahead && intent.sw == nil {
		p.lookaheadPending = false
	}
	decode := p.decode
	p.mu.Unlock()

	if !known {
		log.Debug().Uint64("gen", res.Generation).Msg("Discarding superseded fetch result")
		return
	}

	if res.Err != nil {
		p.handleFetchError(res, intent)
		return
	}

	samples, err := decode(res.Chunk.Data)
	if err != nil {
		res.Err = err
		p.handleFetchError(res, intent)
		return
	}

	switch {
	case intent.sw != nil:
		p.handleSwitchChunk(intent.sw, res.Chunk, samples)
	case intent.seek != nil:
		p.handleSeekChunk(intent.seek, res.Chunk, samples)
	default:
		p.handleStreamChunk(res.Chunk, samples)
	}
}

func (p *Player) handleStreamChunk(chunk *api.Chunk, samples [][2]float64) {
	p.mu.Lock()
	buf := p.buf
	mix := p.mix
	session := p.session
	p.mu.Unlock()
	if buf == nil {
		return
	}

	if err := buf.Append(chunk.Meta, samples); err != nil {
		// Stale or duplicated chunk, e.g. restarted after a cancel. Dropping
		// it keeps the buffered range gap-free and ordered.
		log.Debug().Err(err).Int("seq", chunk.Meta.Sequence).Msg("Rejected chunk append")
		return
	}

	meta := chunk.Meta
	p.bus.emit(Event{Type: EventChunkLoaded, Session: session, Chunk: &meta})
	p.notifyAppend()

	// Underrun recovery: data arrived while in the buffering sub-state.
	p.mu.Lock()
	var resumeEv Event
	var resumeOK bool
	if p.state == StateLoading && p.sinkStarted && mix != nil && buf.Covers(mix.Position()) {
		resumeEv, resumeOK = p.setStateLocked(StatePlaying)
	}
	p.mu.Unlock()
	p.emit(resumeEv, resumeOK)
}

func (p *Player) handleSeekChunk(op *seekOp, chunk *api.Chunk, samples [][2]float64) {
	p.mu.Lock()
	if p.activeSeek == nil || p.activeSeek.gen != op.gen || p.buf == nil {
		p.mu.Unlock()
		return
	}

	if err := p.buf.Append(chunk.Meta, samples); err != nil {
		p.mu.Unlock()
		log.Debug().Err(err).Msg("Rejected seek chunk append")
		return
	}
	meta := chunk.Meta
	session := p.session

	if !p.buf.Covers(op.target) {
		p.mu.Unlock()
		p.bus.emit(Event{Type: EventChunkLoaded, Session: session, Chunk: &meta})
		p.notifyAppend()
		return
	}

	// Settle: the target is buffered and this seek is still the latest one.
	p.activeSeek = nil
	p.mix.SetPosition(op.target)
	ev, ok := p.setStateLocked(op.resume)
	p.mu.Unlock()

	p.bus.emit(Event{Type: EventChunkLoaded, Session: session, Chunk: &meta})
	p.notifyAppend()
	p.emit(ev, ok)
	p.bus.emit(Event{Type: EventTimeUpdate, Session: session, Position: op.target})
	log.Debug().Float64("target", op.target).Msg("Seek settled")
}

func (p *Player) handleFetchError(res fetch.Result, intent fetchIntent) {
	p.mu.Lock()
	p.lastFetchFail = time.Now()
	session := p.session
	buf := p.buf
	mix := p.mix
	p.mu.Unlock()

	switch {
	case intent.sw != nil:
		p.failSwitch(intent.sw, res.Err)

	case intent.seek != nil || intent.initial:
		// Nothing playable at the target position: fatal.
		p.fail(fmt.Errorf("stream stalled: %w", res.Err))

	default:
		// Look-ahead failed. Non-fatal while the playhead still has buffered
		// audio; fatal once playback would stall with no fallback data.
		stalled := buf == nil || mix == nil || !buf.Covers(mix.Position())
		if stalled {
			p.fail(fmt.Errorf("stream stalled: %w", res.Err))
			return
		}
		log.Warn().Err(res.Err).Msg("Look-ahead fetch failed, will retry")
		p.bus.emit(Event{Type: EventError, Session: session, Err: res.Err, Fatal: false})
	}
}

// fail moves the player to the terminal error state.
func (p *Player) fail(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.activeSeek = nil
	p.activeSwitch = nil
	ev, ok := p.setStateLocked(StateError)
	session := p.session
	p.mu.Unlock()

	log.Error().Err(err).Msg("Fatal stream error")
	p.emit(ev, ok)
	p.bus.emit(Event{Type: EventError, Session: session, Err: err, Fatal: true})
	p.notifyAppend()
	p.sink.SetPaused(true)
}

// handleUnderrun runs when the mixer ran out of buffered audio mid-playback.
func (p *Player) handleUnderrun(position float64) {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	ev, ok := p.setStateLocked(StateLoading)
	session := p.session
	p.mu.Unlock()

	log.Warn().Float64("position", position).Msg("Buffer underrun")
	p.emit(ev, ok)
	p.bus.emit(Event{Type: EventUnderrun, Session: session, Position: position})
}

// handleStreamEnd runs when the playhead reaches the stream duration.
func (p *Player) handleStreamEnd() {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	ev, ok := p.setStateLocked(StatePaused)
	session := p.session
	track := p.track
	p.mu.Unlock()

	p.sink.SetPaused(true)
	p.emit(ev, ok)
	if track != nil {
		p.bus.emit(Event{Type: EventTimeUpdate, Session: session, Position: track.Duration})
	}
	log.Debug().Msg("Stream ended")
}

// notifyAppend wakes goroutines blocked in waitCovered.
func (p *Player) notifyAppend() {
	p.mu.Lock()
	if p.appendSignal != nil {
		close(p.appendSignal)
		p.appendSignal = make(chan struct{})
	}
	p.mu.Unlock()
}

var _ beep.Streamer = (*mixer)(nil)
