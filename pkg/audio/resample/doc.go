// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling. Reader adapts a 16-bit PCM
// stream, which is how the playback engine feeds a device whose rate is
// fixed.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	outputSize := r.Resample(inputSamples, outputSamples)
//
//	pcm48k := resample.NewReader(pcm44k, 44100, 48000, 2)
package resample
