// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC frames with mewkiz/flac and narrows samples to 16-bit
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/mewkiz/flac"
)

type flacDecoder struct {
	stream   *flac.Stream
	channels int
	bitDepth int
	buf      []byte
}

func newFLACDecoder(r io.Reader) (*flacDecoder, audio.Format, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: flac: %v", ErrUnsupportedFormat, err)
	}

	info := stream.Info
	format := audio.Format{
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   16,
	}
	if !format.Valid() {
		stream.Close()
		return nil, audio.Format{}, fmt.Errorf("%w: flac: invalid stream info %s", ErrUnsupportedFormat, format)
	}

	return &flacDecoder{
		stream:   stream,
		channels: format.Channels,
		bitDepth: int(info.BitsPerSample),
	}, format, nil
}

func (d *flacDecoder) decodeBlock() ([]byte, error) {
	frame, err := d.stream.ParseNext()
	if err != nil {
		return nil, err
	}

	blockSize := int(frame.BlockSize)
	need := blockSize * d.channels * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	out := d.buf[:need]

	i := 0
	for n := 0; n < blockSize; n++ {
		for ch := 0; ch < d.channels; ch++ {
			s := audio.ScaleToInt16(frame.Subframes[ch].Samples[n], d.bitDepth)
			binary.LittleEndian.PutUint16(out[i:], uint16(s))
			i += 2
		}
	}
	return out, nil
}

func (d *flacDecoder) close() error {
	return d.stream.Close()
}
