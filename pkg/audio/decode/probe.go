// ABOUTME: File-level metadata probing
// ABOUTME: Reports codec, duration and source format without decoding the whole stream
package decode

import (
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// Probe inspects a seekable encoded source and returns its file-level
// metadata. The Format reports the source's own bit depth, which can
// differ from the 16-bit PCM a Stream produces. rs is left at an
// unspecified offset.
func Probe(rs io.ReadSeeker, hint string) (audio.FileFormat, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return audio.FileFormat{}, fmt.Errorf("failed to size source: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return audio.FileFormat{}, fmt.Errorf("failed to rewind source: %w", err)
	}

	codec, head, _, err := sniff(rs, hint)
	if err != nil {
		return audio.FileFormat{}, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return audio.FileFormat{}, fmt.Errorf("failed to rewind source: %w", err)
	}

	ff := audio.FileFormat{
		Type:        codec,
		ByteLength:  size,
		FrameLength: -1,
		Properties:  map[string]any{},
	}

	switch codec {
	case audio.CodecMP3:
		err = probeMP3(rs, &ff)
	case audio.CodecFLAC:
		err = probeFLAC(rs, &ff)
	case audio.CodecWAV:
		err = probeWAV(rs, &ff)
	case audio.CodecOpus, audio.CodecVorbis:
		err = probeOgg(rs, size, head, &ff)
	}
	if err != nil {
		return audio.FileFormat{}, err
	}

	if ff.FrameLength > 0 && ff.Format.SampleRate > 0 {
		ff.Duration = time.Duration(ff.FrameLength) * time.Second / time.Duration(ff.Format.SampleRate)
	}
	return ff, nil
}

func probeMP3(rs io.ReadSeeker, ff *audio.FileFormat) error {
	// With a seekable source go-mp3 scans every frame header up front
	dec, err := mp3.NewDecoder(rs)
	if err != nil {
		return fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}
	ff.Format = audio.Format{SampleRate: dec.SampleRate(), Channels: 2, BitDepth: 16}
	if l := dec.Length(); l > 0 {
		ff.FrameLength = l / 4
	}
	return nil
}

func probeFLAC(rs io.ReadSeeker, ff *audio.FileFormat) error {
	stream, err := flac.New(rs)
	if err != nil {
		return fmt.Errorf("%w: flac: %v", ErrUnsupportedFormat, err)
	}
	defer stream.Close()

	info := stream.Info
	ff.Format = audio.Format{
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   int(info.BitsPerSample),
	}
	if info.NSamples > 0 {
		ff.FrameLength = int64(info.NSamples)
	}
	ff.Properties["flac.md5"] = fmt.Sprintf("%x", info.MD5sum)
	return nil
}

func probeWAV(rs io.ReadSeeker, ff *audio.FileFormat) error {
	dec := wav.NewDecoder(rs)
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("%w: wav: %v", ErrUnsupportedFormat, err)
	}
	if err := dec.Err(); err != nil {
		return fmt.Errorf("%w: wav: %v", ErrUnsupportedFormat, err)
	}

	ff.Format = audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if frameSize := ff.Format.FrameSize(); frameSize > 0 {
		ff.FrameLength = dec.PCMLen() / int64(frameSize)
	}
	ff.Properties["wav.format"] = int(dec.WavAudioFormat)
	return nil
}

func probeOgg(rs io.ReadSeeker, size int64, head []byte, ff *audio.FileFormat) error {
	_, id, ok := parseOggID(head)
	if !ok {
		return fmt.Errorf("%w: %s: missing identification header", ErrUnsupportedFormat, ff.Type)
	}

	ff.Format = audio.Format{SampleRate: id.sampleRate, Channels: id.channels, BitDepth: 16}
	ff.Properties["ogg.input.samplerate.hz"] = id.inputRate

	granule, err := lastGranule(rs, size)
	if err != nil {
		return fmt.Errorf("failed to scan ogg pages: %w", err)
	}
	if frames := granule - id.preSkip; granule > 0 && frames > 0 {
		ff.FrameLength = frames
	}
	return nil
}
