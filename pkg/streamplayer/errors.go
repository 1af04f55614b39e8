// ABOUTME: Error values returned by the playback engine
// ABOUTME: Re-exports source, output and decode sentinels so callers need one import
package streamplayer

import (
	"errors"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/source"
)

var (
	// ErrSourceUnsupported means the origin is not a file, URL or stream
	ErrSourceUnsupported = source.ErrUnsupported

	// ErrDeviceUnavailable means the output device cannot be opened or started
	ErrDeviceUnavailable = output.ErrDeviceUnavailable

	// ErrFormatUnsupported means no decoder or output format fits the media
	ErrFormatUnsupported = decode.ErrUnsupportedFormat

	// ErrSeekUnsupported means the origin cannot seek by encoded byte offset
	ErrSeekUnsupported = errors.New("seek not supported")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDecodeIO wraps read failures while decoding
	ErrDecodeIO = errors.New("decode i/o error")

	// ErrControlUnsupported means the open device lacks the control
	ErrControlUnsupported = errors.New("control not supported")

	ErrNotOpened = errors.New("no source opened")

	// ErrWorkerBusy means the previous playback worker did not exit in time
	ErrWorkerBusy = errors.New("playback worker still running")
)
