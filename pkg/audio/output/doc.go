// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Device interface, backend factories and software controls
// Package output provides audio playback devices.
//
// Backends: oto (default), malgo (miniaudio, with device selection),
// portaudio (build with -tags portaudio) and null. Every device takes
// signed 16-bit little-endian interleaved PCM.
//
// Example:
//
//	f, err := output.NewFactory("malgo")
//	dev, err := f.Device("")
//	format, err := dev.Negotiate(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
//	err = dev.Open(format, -1)
//	err = dev.Start()
//	n, err := dev.Write(pcm)
package output
