// ABOUTME: Streaming playback engine with a single decode/write worker
// ABOUTME: Implements the open/play/pause/resume/stop/reset state machine
package streamplayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/source"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Player decodes one source at a time and writes it to an output device.
//
// Transport methods may be called from any goroutine, but they are not
// serialized against each other; callers that drive a Player from several
// goroutines must order play, stop and seek themselves.
type Player struct {
	cfg     Config
	log     *zap.Logger
	factory output.Factory

	status  atomic.Int32
	session atomic.Pointer[session]

	// streamMu guards reads from the session stream and its replacement by seek
	streamMu sync.Mutex
	// finishMu orders Stop against the worker's final status check
	finishMu sync.Mutex

	outlet    *outlet
	listeners dispatcher
	worker    worker

	mu         sync.Mutex
	speed      float64
	bufferSize int
	pending    output.Device // selected device, swapped in on the next Open
	equalizer  []float32
}

// New creates a player. The output device is chosen from cfg.Devices but
// not opened until Play.
func New(cfg Config) (*Player, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	dev, err := cfg.Devices.Device(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger.Named("streamplayer")
	return &Player{
		cfg:        cfg,
		log:        log,
		factory:    cfg.Devices,
		outlet:     newOutlet(dev, log),
		speed:      cfg.Speed,
		bufferSize: cfg.OutputBufferSize,
	}, nil
}

// AddListener registers l for all subsequent events. A nil listener, or
// one whose type cannot be compared, yields ErrInvalidArgument.
func (p *Player) AddListener(l Listener) error {
	return p.listeners.add(l)
}

// RemoveListener unregisters l, reporting whether it was registered
func (p *Player) RemoveListener(l Listener) bool {
	return p.listeners.remove(l)
}

func (p *Player) setStatus(s Status) {
	p.status.Store(int32(s))
}

func (p *Player) emit(status Status, position int64, description any) {
	p.log.Info("Status updated",
		zap.Stringer("status", status),
		zap.Int64("position", position),
		zap.Any("description", description))
	p.listeners.status(Event{Status: status, Position: position, Description: description})
}

// Open resets the player and opens origin, which may be a path, URL
// string, *url.URL, *os.File, io.Reader or source.Source.
func (p *Player) Open(origin any) error {
	src, err := source.New(origin)
	if err != nil {
		return err
	}

	p.Reset()
	p.setStatus(Opening)
	p.emit(Opening, NotSpecified, src.Origin())

	sess, err := p.openSession(src)
	if err != nil {
		p.log.Error("Failed to open source", zap.Stringer("source", src), zap.Error(err))
		p.setStatus(Unset)
		p.emit(Unset, NotSpecified, err)
		return err
	}

	p.session.Store(sess)
	p.listeners.opened(src.Origin(), sess.properties)
	p.setStatus(Opened)
	p.emit(Opened, sess.position(), nil)
	return nil
}

func (p *Player) openSession(src source.Source) (*session, error) {
	ff, err := src.FileFormat()
	if err != nil {
		return nil, fmt.Errorf("read format of %s: %w", src, err)
	}
	st, err := src.DecodedStream()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}

	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	p.mu.Lock()
	speed := p.speed
	eq := p.equalizer
	if p.pending != nil {
		p.outlet.replace(p.pending)
		p.pending = nil
	}
	p.mu.Unlock()

	if e, isEq := st.(decode.Equalizer); isEq && eq != nil {
		e.SetEqualizer(eq)
	}

	format := st.Format()
	want := format
	want.SampleRate = int(float64(format.SampleRate) * speed)
	out, err := p.outlet.device().Negotiate(want)
	if err != nil {
		return nil, err
	}
	if out.Channels != format.Channels {
		return nil, fmt.Errorf("%w: device plays %d channels, media has %d",
			ErrFormatUnsupported, out.Channels, format.Channels)
	}

	total := int64(-1)
	if src.IsByteSeekable() && ff.ByteLength > 0 {
		total = ff.ByteLength
	}

	id := uuid.New()
	props := ff.PropertyMap()
	props[PropSessionID] = id.String()
	props[PropOutputSampleRate] = out.SampleRate
	props[PropOutputChannels] = out.Channels

	base := &session{
		id:             id,
		src:            src,
		fileFormat:     ff,
		format:         format,
		outFormat:      out,
		totalBytes:     total,
		durationSecs:   src.DurationSeconds(),
		durationMillis: src.DurationMillis(),
		speed:          speed,
		properties:     props,
	}
	ok = true
	return base.withStream(st), nil
}

// Play starts playback of the opened source. A stopped player reopens its
// last source first; in any other state but Opened Play does nothing.
func (p *Player) Play() error {
	if p.Status() == Stopped {
		sess := p.session.Load()
		if sess == nil {
			return nil
		}
		if err := p.Open(sess.src); err != nil {
			return err
		}
	}
	if p.Status() != Opened {
		return nil
	}
	return p.startPlayback()
}

func (p *Player) startPlayback() error {
	if err := p.awaitTermination(); err != nil {
		return err
	}

	sess := p.session.Load()
	if sess == nil {
		return ErrNotOpened
	}

	if err := p.outlet.open(sess.outFormat, p.OutputBufferSize()); err != nil {
		p.log.Error("Failed to open output device", zap.Error(err))
		return err
	}
	if err := p.outlet.start(); err != nil {
		p.outlet.flushAndClose()
		p.log.Error("Failed to start output device", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	p.setStatus(Playing)
	p.emit(Playing, sess.position(), nil)

	return p.worker.submit(func(ctx context.Context, finish func()) {
		p.run(ctx, finish, sess)
	})
}

// awaitTermination joins the previous worker, cancelling it and closing
// the device if it does not exit within the grace period.
func (p *Player) awaitTermination() error {
	if p.worker.wait(p.cfg.StopGrace) {
		return nil
	}
	p.log.Warn("Playback worker did not exit in time, cancelling", zap.Duration("grace", p.cfg.StopGrace))
	p.worker.interrupt()
	p.outlet.flushAndClose()
	if p.worker.wait(p.cfg.StopGrace) {
		return nil
	}
	return ErrWorkerBusy
}

// run is the playback worker: it reads a chunk under the stream lock,
// writes it to the device and reports progress until the stream ends or
// the status leaves Playing/Paused.
func (p *Player) run(ctx context.Context, finish func(), sess *session) {
	buf := make([]byte, p.cfg.ChunkSize)
	var (
		eom    bool
		runErr error
	)

loop:
	for ctx.Err() == nil {
		switch p.Status() {
		case Paused:
			p.outlet.flushAndStop()
			p.waitWhilePaused(ctx)
			continue
		case Playing:
		default:
			break loop
		}

		p.streamMu.Lock()
		if p.session.Load() != sess {
			p.streamMu.Unlock()
			break
		}
		if p.Status() != Playing {
			p.streamMu.Unlock()
			continue
		}
		if p.outlet.startable() {
			if err := p.outlet.start(); err != nil {
				p.streamMu.Unlock()
				runErr = fmt.Errorf("restart output device: %w", err)
				break
			}
		}

		n, err := io.ReadFull(sess.reader, buf)
		var werr error
		if n > 0 {
			_, werr = p.outlet.write(buf[:n])
		}
		pos := sess.position()
		props := sess.streamProperties()
		p.streamMu.Unlock()

		if werr != nil {
			if ctx.Err() == nil && !errors.Is(werr, output.ErrNotOpen) {
				runErr = fmt.Errorf("write to output device: %w", werr)
			}
			break
		}
		if n > 0 {
			p.listeners.progress(pos, p.outlet.micros(), buf[:n], props)
		}

		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eom = true
			break loop
		case err != nil:
			runErr = fmt.Errorf("%w: %v", ErrDecodeIO, err)
			break loop
		}
	}

	switch {
	case ctx.Err() != nil, p.Status() == Seeking, p.Status() == Unset:
		p.outlet.flushAndClose()
	default:
		p.outlet.drainStopAndClose()
	}
	p.streamMu.Lock()
	sess.stream.Close()
	p.streamMu.Unlock()

	if runErr != nil {
		p.log.Error("Playback stopped on error", zap.Error(runErr))
	}

	pos := sess.position()

	p.finishMu.Lock()
	if eom || runErr != nil {
		if !p.status.CompareAndSwap(int32(Playing), int32(Stopped)) {
			p.status.CompareAndSwap(int32(Paused), int32(Stopped))
		}
	}
	stopped := p.stoppedOn(sess)
	finish()
	p.finishMu.Unlock()

	if eom {
		p.emit(EndOfMedia, pos, nil)
	}
	// an EndOfMedia listener may already have reopened or replayed the source
	if stopped && p.stoppedOn(sess) {
		var desc any
		if runErr != nil {
			desc = runErr
		}
		p.emit(Stopped, pos, desc)
	}
}

// stoppedOn reports whether the player is Stopped with sess still current
func (p *Player) stoppedOn(sess *session) bool {
	return p.Status() == Stopped && p.session.Load() == sess
}

func (p *Player) waitWhilePaused(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PausePoll)
	defer ticker.Stop()
	for p.Status() == Paused {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pause suspends playback. It returns false unless the player was playing
// with an open device.
func (p *Player) Pause() bool {
	if !p.outlet.isOpen() {
		return false
	}
	if !p.status.CompareAndSwap(int32(Playing), int32(Paused)) {
		return false
	}
	p.emit(Paused, p.EncodedStreamPosition(), nil)
	return true
}

// Resume continues paused playback. It returns false unless the player
// was paused.
func (p *Player) Resume() bool {
	if !p.status.CompareAndSwap(int32(Paused), int32(Playing)) {
		return false
	}
	if p.outlet.isOpen() {
		if err := p.outlet.start(); err != nil {
			p.log.Warn("Failed to restart output device", zap.Error(err))
		}
	}
	p.emit(Playing, p.EncodedStreamPosition(), nil)
	return true
}

// Stop ends playback. The running worker drains the device and reports
// Stopped; with no worker running Stop reports it directly. Stopping a
// stopped player does nothing.
func (p *Player) Stop() {
	p.finishMu.Lock()
	switch p.Status() {
	case Stopped, Unset, Opening:
		p.finishMu.Unlock()
		return
	}
	p.setStatus(Stopped)
	running := p.worker.busy()
	p.finishMu.Unlock()

	if running {
		return
	}
	p.outlet.drainStopAndClose()
	p.emit(Stopped, p.EncodedStreamPosition(), nil)
}

// Reset stops any playback, closes the source and device and returns the
// player to Unset.
func (p *Player) Reset() {
	prev := Status(p.status.Swap(int32(Unset)))
	if err := p.awaitTermination(); err != nil {
		p.log.Error("Failed to stop playback worker", zap.Error(err))
	}

	p.streamMu.Lock()
	sess := p.session.Swap(nil)
	if sess != nil {
		sess.stream.Close()
	}
	p.streamMu.Unlock()

	p.outlet.flushAndClose()

	if prev != Unset || sess != nil {
		p.emit(Unset, NotSpecified, nil)
	}
}

// Close resets the player and releases the output device
func (p *Player) Close() error {
	p.Reset()
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	if pending != nil {
		pending.Close()
	}
	return p.outlet.device().Close()
}

// Status returns the current transport status
func (p *Player) Status() Status {
	return Status(p.status.Load())
}

// IsPlaying reports whether the status is Playing
func (p *Player) IsPlaying() bool { return p.Status() == Playing }

// IsPaused reports whether the status is Paused
func (p *Player) IsPaused() bool { return p.Status() == Paused }

// IsOpened reports whether a source is open and not yet played
func (p *Player) IsOpened() bool { return p.Status() == Opened }

// IsStopped reports whether the status is Stopped
func (p *Player) IsStopped() bool { return p.Status() == Stopped }

// IsSeeking reports whether a seek is in progress
func (p *Player) IsSeeking() bool { return p.Status() == Seeking }

// IsUnset reports whether no source is open
func (p *Player) IsUnset() bool { return p.Status() == Unset }

// DurationSeconds is the source duration in whole seconds, -1 if unknown
func (p *Player) DurationSeconds() int {
	if sess := p.session.Load(); sess != nil {
		return sess.durationSecs
	}
	return -1
}

// DurationMillis is the source duration in milliseconds, -1 if unknown
func (p *Player) DurationMillis() int64 {
	if sess := p.session.Load(); sess != nil {
		return sess.durationMillis
	}
	return -1
}

// TotalBytes is the encoded length of a byte-seekable source, -1 otherwise
func (p *Player) TotalBytes() int64 {
	if sess := p.session.Load(); sess != nil {
		return sess.totalBytes
	}
	return -1
}

// EncodedStreamPosition is the encoded byte offset of the decoder, or
// NotSpecified when the source is not byte-seekable.
func (p *Player) EncodedStreamPosition() int64 {
	if sess := p.session.Load(); sess != nil {
		return sess.position()
	}
	return NotSpecified
}

// Properties returns the properties reported when the source was opened
func (p *Player) Properties() map[string]any {
	sess := p.session.Load()
	if sess == nil {
		return nil
	}
	props := make(map[string]any, len(sess.properties))
	for k, v := range sess.properties {
		props[k] = v
	}
	return props
}

// SpeedFactor is the playback rate multiplier
func (p *Player) SpeedFactor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetSpeedFactor scales the output sample rate from the next Open
func (p *Player) SetSpeedFactor(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("%w: speed factor %v", ErrInvalidArgument, speed)
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
	return nil
}

// OutputBufferSize is the requested device buffer in bytes, -1 for the default
func (p *Player) OutputBufferSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferSize
}

// SetOutputBufferSize sets the device buffer requested on the next Play
func (p *Player) SetOutputBufferSize(n int) {
	if n <= 0 {
		n = -1
	}
	p.mu.Lock()
	p.bufferSize = n
	p.mu.Unlock()
}

// CurrentOutputBufferSize is the buffer the open device reports, -1 if closed
func (p *Player) CurrentOutputBufferSize() int {
	if !p.outlet.isOpen() {
		return -1
	}
	return p.outlet.bufferSize()
}

// AvailableOutputDevices lists device names of the configured backend
func (p *Player) AvailableOutputDevices() ([]string, error) {
	return p.factory.ListDevices()
}

// SetOutputDeviceName selects the device used from the next Open
func (p *Player) SetOutputDeviceName(name string) error {
	dev, err := p.factory.Device(name)
	if err != nil {
		return err
	}
	p.mu.Lock()
	old := p.pending
	p.pending = dev
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}
