// ABOUTME: Entry point for the streamplayer binary
// ABOUTME: Hands off to the cobra command tree
package main

import "github.com/Resonate-Protocol/streamplayer-go/internal/cli"

func main() {
	cli.Execute()
}
