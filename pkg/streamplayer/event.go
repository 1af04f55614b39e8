// ABOUTME: Player events delivered to listeners
// ABOUTME: An event pairs a status with the encoded stream position at the time
package streamplayer

import "fmt"

// NotSpecified marks an unknown encoded stream position
const NotSpecified int64 = -1

// Event is an immutable status notification
type Event struct {
	Status Status

	// Position is the byte offset into the encoded stream, or NotSpecified
	Position int64

	// Description carries the source origin, an error or a value such as the new pan
	Description any
}

func (e Event) String() string {
	if e.Description == nil {
		return fmt.Sprintf("%s@%d", e.Status, e.Position)
	}
	return fmt.Sprintf("%s@%d (%v)", e.Status, e.Position, e.Description)
}
