// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, file-level metadata and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// 16-bit audio range constants
	Max16Bit = 32767
	Min16Bit = -32768
)

// Codec identifies the container/codec of an encoded source
type Codec string

const (
	CodecUnknown Codec = ""
	CodecMP3     Codec = "mp3"
	CodecFLAC    Codec = "flac"
	CodecWAV     Codec = "wav"
	CodecOpus    Codec = "opus"
	CodecVorbis  Codec = "vorbis"
)

// Property keys shared by FileFormat.Properties and the engine's opened event
const (
	PropType          = "audio.type"
	PropLengthBytes   = "audio.length.bytes"
	PropLengthFrames  = "audio.length.frames"
	PropSampleRate    = "audio.samplerate.hz"
	PropSampleSize    = "audio.samplesize.bits"
	PropChannels      = "audio.channels"
	PropFrameSize     = "audio.framesize.bytes"
	PropDuration      = "duration"
	PropPositionByte  = "stream.position.byte"
	PropPositionMicro = "stream.position.microseconds"
	PropBitrate       = "stream.bitrate.bps"
)

// Format describes a PCM stream. All decoded PCM in this module is signed
// little-endian; BitDepth is 16 unless stated otherwise.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameSize returns the number of bytes in one frame (one sample per channel)
func (f Format) FrameSize() int {
	return f.Channels * ((f.BitDepth + 7) / 8)
}

// BytesPerSecond returns the PCM byte rate
func (f Format) BytesPerSecond() int {
	return f.FrameSize() * f.SampleRate
}

// Valid reports whether the format can be played at all
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// FileFormat is file-level metadata about an encoded source
type FileFormat struct {
	Type        Codec
	ByteLength  int64 // encoded length, -1 if unknown
	FrameLength int64 // decoded frames, -1 if unknown
	Duration    time.Duration
	Format      Format
	Properties  map[string]any
}

// DurationSeconds returns the whole-second duration, or -1 if unknown
func (ff FileFormat) DurationSeconds() int {
	if ff.Duration <= 0 {
		return -1
	}
	return int(ff.Duration / time.Second)
}

// DurationMillis returns the duration in milliseconds, or -1 if unknown
func (ff FileFormat) DurationMillis() int64 {
	if ff.Duration <= 0 {
		return -1
	}
	return ff.Duration.Milliseconds()
}

// PropertyMap returns the standard audio.* keys merged with any
// decoder-specific Properties.
func (ff FileFormat) PropertyMap() map[string]any {
	props := make(map[string]any, len(ff.Properties)+8)
	for k, v := range ff.Properties {
		props[k] = v
	}
	props[PropType] = string(ff.Type)
	props[PropLengthBytes] = ff.ByteLength
	props[PropLengthFrames] = ff.FrameLength
	props[PropSampleRate] = ff.Format.SampleRate
	props[PropSampleSize] = ff.Format.BitDepth
	props[PropChannels] = ff.Format.Channels
	props[PropFrameSize] = ff.Format.FrameSize()
	if ff.Duration > 0 {
		props[PropDuration] = ff.Duration.Microseconds()
	}
	return props
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// ScaleToInt16 converts a signed sample of the given bit depth to 16 bits
func ScaleToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth == 16:
		return int16(sample)
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	default:
		return int16(sample << (16 - bitDepth))
	}
}

// Int16ToBytes packs samples as little-endian bytes into dst, which must
// hold 2*len(samples) bytes. It returns the number of bytes written.
func Int16ToBytes(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return len(samples) * 2
}

// BytesToInt16 unpacks little-endian 16-bit samples. A trailing odd byte is ignored.
func BytesToInt16(src []byte) []int16 {
	out := make([]int16, len(src)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return out
}

// ClampInt16 saturates v to the 16-bit range
func ClampInt16(v float64) int16 {
	if v > Max16Bit {
		return Max16Bit
	}
	if v < Min16Bit {
		return Min16Bit
	}
	return int16(v)
}
