// ABOUTME: WAV audio decoder
// ABOUTME: Reads RIFF/WAVE PCM through go-audio/wav and narrows samples to 16-bit
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	// wavBlockFrames keeps Skip granularity around 2KB for CD audio
	wavBlockFrames = 512
)

type wavDecoder struct {
	dec      *wav.Decoder
	ibuf     *goaudio.IntBuffer
	bitDepth int
	out      []byte
}

// newWAVDecoder needs random access for the RIFF parser; a forward-only
// source is buffered in memory first.
func newWAVDecoder(cnt *counter) (*wavDecoder, audio.Format, error) {
	rs, ok := cnt.r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(cnt.r)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("failed to buffer wav: %w", err)
		}
		br := bytes.NewReader(data)
		cnt.r = br
		rs = br
	}

	dec := wav.NewDecoder(&seekCounter{counter: cnt, s: rs})
	if err := dec.FwdToPCM(); err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: wav: %v", ErrUnsupportedFormat, err)
	}
	if err := dec.Err(); err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: wav: %v", ErrUnsupportedFormat, err)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, audio.Format{}, fmt.Errorf("%w: wav: audio format %d is not PCM", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, audio.Format{}, fmt.Errorf("%w: wav: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}

	format := audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}
	if !format.Valid() {
		return nil, audio.Format{}, fmt.Errorf("%w: wav: invalid header %s", ErrUnsupportedFormat, format)
	}

	return &wavDecoder{
		dec: dec,
		ibuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			Data:   make([]int, wavBlockFrames*format.Channels),
		},
		bitDepth: bitDepth,
		out:      make([]byte, wavBlockFrames*format.Channels*2),
	}, format, nil
}

func (d *wavDecoder) decodeBlock() ([]byte, error) {
	n, err := d.dec.PCMBuffer(d.ibuf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}

	for i, v := range d.ibuf.Data[:n] {
		if d.bitDepth == 8 {
			v -= 128 // 8-bit WAV is unsigned
		}
		s := audio.ScaleToInt16(int32(v), d.bitDepth)
		binary.LittleEndian.PutUint16(d.out[i*2:], uint16(s))
	}
	return d.out[:n*2], nil
}

func (d *wavDecoder) close() error {
	return nil
}
