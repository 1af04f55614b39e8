// ABOUTME: File-backed audio source
// ABOUTME: Reopens the file for every decoded stream and probes metadata once
package source

import (
	"fmt"
	"os"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
)

// FileSource plays a local file
type FileSource struct {
	path   string
	origin any

	once sync.Once
	ff   audio.FileFormat
	err  error
}

// NewFile creates a source for the file at path
func NewFile(path string) *FileSource {
	return &FileSource{path: path, origin: path}
}

func (f *FileSource) Kind() Kind           { return File }
func (f *FileSource) Origin() any          { return f.origin }
func (f *FileSource) Path() string         { return f.path }
func (f *FileSource) IsByteSeekable() bool { return true }
func (f *FileSource) String() string       { return "file:" + f.path }

func (f *FileSource) DecodedStream() (s decode.Stream, err error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer func() { closeOnError(file, err) }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.path, err)
	}
	return decode.Open(file, info.Size(), f.path)
}

// FileFormat probes the file on first use and caches the result
func (f *FileSource) FileFormat() (audio.FileFormat, error) {
	f.once.Do(func() {
		file, err := os.Open(f.path)
		if err != nil {
			f.err = fmt.Errorf("open %s: %w", f.path, err)
			return
		}
		defer file.Close()
		f.ff, f.err = decode.Probe(file, f.path)
	})
	return f.ff, f.err
}

func (f *FileSource) DurationSeconds() int {
	ff, err := f.FileFormat()
	if err != nil {
		return -1
	}
	return ff.DurationSeconds()
}

func (f *FileSource) DurationMillis() int64 {
	ff, err := f.FileFormat()
	if err != nil {
		return -1
	}
	return ff.DurationMillis()
}
