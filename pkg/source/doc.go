// ABOUTME: Audio source package
// ABOUTME: Tagged file, URL and stream origins behind one Source interface
// Package source turns playable origins into decoded PCM streams.
//
// New accepts a path, an http(s) or file URL (string or *url.URL), an
// *os.File or any io.Reader:
//
//	src, err := source.New("https://radio.example/live.mp3")
//	st, err := src.DecodedStream()
//	defer st.Close()
package source
