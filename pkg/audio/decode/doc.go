// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides the streaming Stream capability for MP3, FLAC, WAV, Opus and Vorbis
// Package decode turns encoded audio into a forward-only stream of PCM.
//
// Supports: MP3, FLAC, WAV (8/16/24/32-bit PCM), Ogg Opus, Ogg Vorbis
//
// Every Stream yields signed 16-bit little-endian interleaved PCM and counts
// the encoded bytes it has consumed, so callers can map playback progress
// back onto the encoded file. Skip advances by encoded bytes, one decoded
// block at a time, which makes it frame-granular rather than byte-exact.
//
// Example:
//
//	f, _ := os.Open("track.flac")
//	info, _ := f.Stat()
//	stream, err := decode.Open(f, info.Size(), f.Name())
//	if err != nil {
//	    return err
//	}
//	defer stream.Close() // also closes f
//
//	buf := make([]byte, 4096)
//	n, err := stream.Read(buf)
package decode
