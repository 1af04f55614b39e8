// ABOUTME: HTTP(S) audio source
// ABOUTME: Issues a fresh GET for every decoded stream
package source

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
)

// DefaultClient is used by URL sources without an explicit client.
// Only the connection phase is bounded; bodies stream for as long as playback runs.
var DefaultClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 15 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	},
}

// URLSource plays audio served over HTTP
type URLSource struct {
	url    *url.URL
	origin any
	client *http.Client

	mu sync.Mutex
	ff *audio.FileFormat
}

// NewURL creates a source for u
func NewURL(u *url.URL) *URLSource {
	return &URLSource{url: u, origin: u, client: DefaultClient}
}

// WithClient sets the HTTP client used for requests
func (s *URLSource) WithClient(c *http.Client) *URLSource {
	s.client = c
	return s
}

func (s *URLSource) Kind() Kind           { return URL }
func (s *URLSource) Origin() any          { return s.origin }
func (s *URLSource) URL() *url.URL        { return s.url }
func (s *URLSource) IsByteSeekable() bool { return false }
func (s *URLSource) String() string       { return s.url.Redacted() }

func (s *URLSource) get() (*http.Response, error) {
	resp, err := s.client.Get(s.url.String())
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.url.Redacted(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s", s.url.Redacted(), resp.Status)
	}
	return resp, nil
}

func (s *URLSource) DecodedStream() (decode.Stream, error) {
	resp, err := s.get()
	if err != nil {
		return nil, err
	}
	st, err := decode.Open(resp.Body, resp.ContentLength, path.Base(s.url.Path))
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	s.mu.Lock()
	if s.ff == nil {
		ff := audio.FileFormat{
			Type:        codecOf(st),
			ByteLength:  resp.ContentLength,
			FrameLength: -1,
			Format:      st.Format(),
			Properties:  map[string]any{},
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			ff.Properties["http.content.type"] = ct
		}
		s.ff = &ff
	}
	s.mu.Unlock()

	return st, nil
}

// FileFormat reports the metadata seen when the body was first decoded.
// Duration is not known for network sources.
func (s *URLSource) FileFormat() (audio.FileFormat, error) {
	s.mu.Lock()
	ff := s.ff
	s.mu.Unlock()
	if ff != nil {
		return *ff, nil
	}

	st, err := s.DecodedStream()
	if err != nil {
		return audio.FileFormat{}, err
	}
	st.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ff, nil
}

func (s *URLSource) DurationSeconds() int  { return -1 }
func (s *URLSource) DurationMillis() int64 { return -1 }

// codecOf reads the codec property a decoded stream reports, if any
func codecOf(st decode.Stream) audio.Codec {
	if ps, ok := st.(decode.PropertySource); ok {
		if c, ok := ps.Properties()[audio.PropType].(audio.Codec); ok {
			return c
		}
	}
	return audio.CodecUnknown
}
