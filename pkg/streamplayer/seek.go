// ABOUTME: Byte and time seeking by re-decoding from the start of the source
// ABOUTME: Time targets map linearly onto encoded bytes, so VBR seeks are approximate
package streamplayer

import (
	"fmt"

	"go.uber.org/zap"
)

// SeekBytes moves playback to encoded byte offset n and returns the bytes
// skipped. The source is decoded again from the start and skipped forward
// frame by frame, so playback may land slightly after n.
//
// A target at or past the end reports EndOfMedia and returns 0. Sources
// that cannot seek by byte also report EndOfMedia and return
// ErrSeekUnsupported.
func (p *Player) SeekBytes(n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative seek offset %d", ErrInvalidArgument, n)
	}
	sess := p.session.Load()
	if sess == nil {
		return 0, ErrNotOpened
	}

	if !sess.src.IsByteSeekable() || sess.totalBytes <= 0 {
		p.emit(EndOfMedia, sess.position(), ErrSeekUnsupported)
		return 0, ErrSeekUnsupported
	}
	if n >= sess.totalBytes {
		p.emit(EndOfMedia, sess.position(), nil)
		return 0, nil
	}

	prev := p.Status()
	p.setStatus(Seeking)
	p.emit(Seeking, sess.position(), n)

	// let the worker see Seeking and release the device before the stream goes away
	if err := p.awaitTermination(); err != nil {
		p.log.Error("Failed to stop playback worker before seek", zap.Error(err))
	}

	skipped, err := p.reposition(n)
	if err != nil {
		p.log.Error("Seek failed", zap.Int64("target", n), zap.Error(err))
		p.setStatus(Stopped)
		p.emit(Stopped, p.EncodedStreamPosition(), err)
		return skipped, err
	}

	p.emit(Seeked, p.EncodedStreamPosition(), skipped)
	p.setStatus(Opened)

	switch prev {
	case Playing:
		err = p.Play()
	case Paused:
		if err = p.Play(); err == nil {
			p.Pause()
		}
	}
	return skipped, err
}

// reposition replaces the session stream with a fresh one skipped to n
func (p *Player) reposition(n int64) (int64, error) {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()

	sess := p.session.Load()
	if sess == nil {
		return 0, ErrNotOpened
	}

	st, err := sess.src.DecodedStream()
	if err != nil {
		return 0, fmt.Errorf("reopen %s: %w", sess.src, err)
	}

	var total int64
	need := n - (sess.totalBytes - st.Remaining())
	for total < need {
		k, err := st.Skip(need - total)
		total += k
		if err != nil {
			st.Close()
			return total, fmt.Errorf("%w: %v", ErrDecodeIO, err)
		}
		if k == 0 {
			break
		}
	}
	if need > 0 && total == 0 {
		st.Close()
		return 0, ErrSeekUnsupported
	}

	next := sess.withStream(st)
	p.session.Store(next)
	sess.stream.Close()
	return total, nil
}

// SeekSeconds moves playback by seconds relative to the current position
func (p *Player) SeekSeconds(seconds int) (int64, error) {
	bytes, err := p.secondsToBytes(seconds)
	if err != nil {
		return 0, err
	}
	pos := p.EncodedStreamPosition()
	if pos < 0 {
		pos = 0
	}
	return p.SeekBytes(pos + bytes)
}

// SeekTo moves playback to seconds from the start of the source
func (p *Player) SeekTo(seconds int) (int64, error) {
	bytes, err := p.secondsToBytes(seconds)
	if err != nil {
		return 0, err
	}
	return p.SeekBytes(bytes)
}

// secondsToBytes maps seconds onto the encoded length in proportion to the duration
func (p *Player) secondsToBytes(seconds int) (int64, error) {
	sess := p.session.Load()
	if sess == nil {
		return 0, ErrNotOpened
	}
	duration := sess.durationSecs
	if duration <= 0 || sess.totalBytes <= 0 {
		return 0, ErrSeekUnsupported
	}
	if seconds < 0 || seconds >= duration {
		return 0, fmt.Errorf("%w: %ds outside [0, %d)", ErrInvalidArgument, seconds, duration)
	}
	return int64(float64(sess.totalBytes) * float64(seconds) / float64(duration)), nil
}
