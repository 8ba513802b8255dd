package commons

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type Flag uint16

const (
	// NoTotalOrder makes a group message bypass sequencing.
	NoTotalOrder Flag = 1 << iota
	// Internal marks protocol control traffic (PROPOSE, FINAL).
	Internal
)

type HeaderType uint8

const (
	DataMessage HeaderType = iota + 1
	ProposeMessage
	FinalMessage
	SingleDestinationMessage
)

func (t HeaderType) String() string {
	switch t {
	case DataMessage:
		return "DATA"
	case ProposeMessage:
		return "PROPOSE"
	case FinalMessage:
		return "FINAL"
	case SingleDestinationMessage:
		return "SINGLE_DESTINATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Header is the total order header. Destinations is only set on DATA.
type Header struct {
	Type         HeaderType
	ID           MessageID
	Sequence     uint64
	Destinations []Address
}

func (h *Header) Copy() *Header {
	if h == nil {
		return nil
	}
	cpy := *h
	cpy.Destinations = slices.Clone(h.Destinations)
	return &cpy
}

func (h *Header) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("(type=%s,id=%s,seq=%d,dst=%v)", h.Type, h.ID, h.Sequence, h.Destinations)
}

// Message is the unit exchanged with the layers above and below. Dest keeps the
// destination chosen by the application for the whole trip; the concrete unicast
// target is handed to the transport separately.
type Message struct {
	Src     Address
	Dest    Destination
	Flags   Flag
	Header  *Header
	Payload []byte
}

func NewMessage(dest Destination, payload []byte) *Message {
	return &Message{
		Dest:    dest,
		Payload: payload,
	}
}

func (m *Message) SetFlag(flags ...Flag) *Message {
	for _, f := range flags {
		m.Flags |= f
	}
	return m
}

func (m *Message) IsFlagSet(f Flag) bool {
	return m.Flags&f == f
}

// Copy returns a message sharing no mutable memory with m.
func (m *Message) Copy() *Message {
	return &Message{
		Src:     m.Src,
		Dest:    m.Dest,
		Flags:   m.Flags,
		Header:  m.Header.Copy(),
		Payload: slices.Clone(m.Payload),
	}
}

func (m Message) String() string {
	return fmt.Sprintf("(src=%s,dst=%v,hdr=%s,len=%d)", m.Src, m.Dest, m.Header, len(m.Payload))
}
