package watcher

import "time"

type Kind int

const (
	Created Kind = iota + 1
	Modified
	MovedTo
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case MovedTo:
		return "moved"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Signal is a normalized change to a non-directory path. For MovedTo, Path is
// the destination and From the source.
type Signal struct {
	Kind Kind
	Path string
	From string
	At   time.Time
}
