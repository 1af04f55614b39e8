// ABOUTME: Streaming audio playback engine package
// ABOUTME: Opens file, URL and stream sources and plays them through an output device
// Package streamplayer plays encoded audio from files, URLs and byte
// streams through a pluggable output device.
//
// A Player moves through Unset, Opening, Opened, Playing, Paused and
// Stopped. Open decodes the source header and negotiates a device format;
// Play starts a single worker goroutine that reads fixed-size PCM chunks
// and writes them to the device, which paces playback. Listeners receive
// every status change and a progress callback per chunk, synchronously on
// the goroutine that produced them.
//
// Seeking re-decodes the source from its first byte and skips forward, so
// only byte-seekable sources (local files) can seek. Time targets are
// mapped to byte offsets in proportion to the duration, which is
// approximate for variable bitrate media.
//
// Basic usage:
//
//	p, err := streamplayer.New(streamplayer.Config{})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	p.AddListener(&streamplayer.Callbacks{
//		OnStatus: func(e streamplayer.Event) { fmt.Println(e) },
//	})
//	if err := p.Open("track.flac"); err != nil {
//		return err
//	}
//	return p.Play()
package streamplayer
