// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, FileFormat types and sample conversion functions
// Package audio provides fundamental audio types shared by the decoders,
// output backends and the playback engine.
//
//   - Format: a PCM layout (sample rate, channels, bit depth)
//   - FileFormat: metadata about an encoded source (codec, encoded length, duration)
//
// It also provides helpers for converting between sample widths and packing
// 16-bit samples as little-endian bytes.
//
// Example:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	fmt.Println(format.BytesPerSecond()) // 176400
//
//	// Convert a 24-bit FLAC sample to 16 bits
//	s16 := audio.ScaleToInt16(sample, 24)
package audio
