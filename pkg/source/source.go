// ABOUTME: Audio source abstraction over file, URL and byte-stream origins
// ABOUTME: Each source yields decoded PCM streams and file-level format metadata
package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
)

var (
	// ErrUnsupported is returned by New for origins it cannot play
	ErrUnsupported = errors.New("unsupported source")
	// ErrNotReopenable means a forward-only stream has already been consumed
	ErrNotReopenable = errors.New("stream source cannot be reopened")
)

// Kind identifies the origin variant of a Source
type Kind int

const (
	File Kind = iota + 1
	URL
	Stream
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case URL:
		return "url"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Source is an encoded audio origin the engine can decode
type Source interface {
	Kind() Kind

	// Origin returns the value the source was created from
	Origin() any

	// DecodedStream opens a fresh decoder positioned at the start of the media
	DecodedStream() (decode.Stream, error)

	FileFormat() (audio.FileFormat, error)

	// DurationSeconds returns the whole seconds of media, -1 when unknown
	DurationSeconds() int
	DurationMillis() int64

	// IsByteSeekable reports whether encoded byte offsets are meaningful
	IsByteSeekable() bool

	String() string
}

// New creates a Source for origin. Strings with an http, https or file
// scheme are URLs, other strings are paths.
func New(origin any) (Source, error) {
	switch o := origin.(type) {
	case Source:
		return o, nil
	case string:
		if o == "" {
			return nil, fmt.Errorf("%w: empty location", ErrUnsupported)
		}
		if u, err := url.Parse(o); err == nil && isURLScheme(u.Scheme) {
			return newURLOrigin(u, origin)
		}
		return NewFile(o), nil
	case *url.URL:
		if o == nil {
			break
		}
		return newURLOrigin(o, origin)
	case *os.File:
		if o == nil {
			break
		}
		f := NewFile(o.Name())
		f.origin = o
		return f, nil
	case io.Reader:
		if o == nil {
			break
		}
		return NewStream(o), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, origin)
}

func isURLScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "file":
		return true
	}
	return false
}

func newURLOrigin(u *url.URL, origin any) (Source, error) {
	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		f := NewFile(path)
		f.origin = origin
		return f, nil
	case "http", "https":
		s := NewURL(u)
		s.origin = origin
		return s, nil
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
}

// closeOnError closes c when err is set
func closeOnError(c io.Closer, err error) {
	if err != nil {
		c.Close()
	}
}
