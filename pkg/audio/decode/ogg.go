// ABOUTME: Ogg container helpers shared by the Opus and Vorbis decoders
// ABOUTME: Parses identification headers and finds the final granule position
package decode

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

// opusOutputRate is the rate libopusfile always decodes to
const opusOutputRate = 48000

// oggTailLen bounds how much of the file end is scanned for the last page
const oggTailLen = 64 * 1024

// oggID is the subset of an Ogg identification header needed for playback
type oggID struct {
	channels   int
	sampleRate int   // decoded output rate
	inputRate  int   // rate of the original input, informational for Opus
	preSkip    int64 // granules to discard at stream start (Opus only)
}

// parseOggID reads the OpusHead or Vorbis identification packet from the
// first page of an Ogg stream.
func parseOggID(head []byte) (audio.Codec, oggID, bool) {
	if i := bytes.Index(head, []byte("OpusHead")); i >= 0 && len(head) >= i+16 {
		return audio.CodecOpus, oggID{
			channels:   int(head[i+9]),
			sampleRate: opusOutputRate,
			inputRate:  int(binary.LittleEndian.Uint32(head[i+12:])),
			preSkip:    int64(binary.LittleEndian.Uint16(head[i+10:])),
		}, true
	}
	if i := bytes.Index(head, []byte("\x01vorbis")); i >= 0 && len(head) >= i+16 {
		rate := int(binary.LittleEndian.Uint32(head[i+12:]))
		return audio.CodecVorbis, oggID{
			channels:   int(head[i+11]),
			sampleRate: rate,
			inputRate:  rate,
		}, true
	}
	return audio.CodecUnknown, oggID{}, false
}

// lastGranule returns the granule position of the last Ogg page in rs, or
// -1 if no page header is found in the tail of the file.
func lastGranule(rs io.ReadSeeker, size int64) (int64, error) {
	tail := int64(oggTailLen)
	if size < tail {
		tail = size
	}
	if tail <= 0 {
		return -1, nil
	}
	if _, err := rs.Seek(size-tail, io.SeekStart); err != nil {
		return -1, err
	}
	buf := make([]byte, tail)
	if _, err := io.ReadFull(rs, buf); err != nil {
		return -1, err
	}

	for end := len(buf); end > 0; {
		i := bytes.LastIndex(buf[:end], []byte("OggS"))
		if i < 0 {
			break
		}
		// Granule position sits at offset 6; -1 marks a page with no completed packet
		if i+14 <= len(buf) {
			g := int64(binary.LittleEndian.Uint64(buf[i+6:]))
			if g >= 0 {
				return g, nil
			}
		}
		end = i
	}
	return -1, nil
}
