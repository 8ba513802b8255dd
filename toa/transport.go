package toa

import "github.com/tuannh982/toa/toa/commons"

// Transport is the layer below: reliable point-to-point delivery.
type Transport interface {
	Unicast(to commons.Address, msg *commons.Message) error
}

// Deliverer is the layer above. Ordered messages are delivered once each, in
// total order, from a single goroutine. Messages without a protocol header are
// passed up from the goroutine that called Protocol.Up.
type Deliverer interface {
	Deliver(msg *commons.Message)
}

type DelivererFunc func(msg *commons.Message)

func (f DelivererFunc) Deliver(msg *commons.Message) {
	f(msg)
}
