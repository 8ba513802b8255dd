package commons

import (
	"fmt"
	"strings"
)

// MessageID identifies one multicast: the origin plus a per-origin counter.
type MessageID struct {
	Origin  Address
	Counter uint64
}

func (id MessageID) Compare(o MessageID) int {
	if c := strings.Compare(string(id.Origin), string(o.Origin)); c != 0 {
		return c
	}
	switch {
	case id.Counter < o.Counter:
		return -1
	case id.Counter > o.Counter:
		return 1
	default:
		return 0
	}
}

func (id MessageID) Less(o MessageID) bool {
	return id.Compare(o) < 0
}

func (id MessageID) String() string {
	return fmt.Sprintf("%s:%d", id.Origin, id.Counter)
}
