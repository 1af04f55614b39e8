// ABOUTME: Transport status of the playback engine
// ABOUTME: Status values double as the event kinds delivered to listeners
package streamplayer

import "fmt"

// Status is the transport state of a Player
type Status int32

const (
	Unset Status = iota
	Opening
	Opened
	Playing
	Paused
	Stopped
	Seeking
	Seeked
	EndOfMedia
	PanChanged
)

var statusNames = [...]string{
	Unset:      "unset",
	Opening:    "opening",
	Opened:     "opened",
	Playing:    "playing",
	Paused:     "paused",
	Stopped:    "stopped",
	Seeking:    "seeking",
	Seeked:     "seeked",
	EndOfMedia: "eom",
	PanChanged: "pan",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// ParseStatus is the inverse of Status.String
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return Unset, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, name)
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
