package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/utils/service"
)

var (
	ErrUnknownAddress = errors.New("unknown address")
	ErrUnreachable    = errors.New("address unreachable")
	ErrNotRunning     = errors.New("network not running")
)

const DefaultInboxSize = 65535

// Receiver is the layer above the network, usually a *toa.Protocol.
type Receiver interface {
	Up(msg *commons.Message)
}

type endpoint struct {
	addr      commons.Address
	receiver  Receiver
	inbox     chan *commons.Message
	reachable bool
	cancel    context.CancelFunc
}

// LocalNetwork connects nodes living in the same process. Each node has one
// inbox drained by its own goroutine, so messages between a pair of nodes
// arrive in the order they were sent.
type LocalNetwork struct {
	*service.SimpleService
	mu        sync.RWMutex
	ctx       context.Context
	endpoints map[commons.Address]*endpoint
	inboxSize int
	log       *log.Entry
}

func NewLocalNetwork(logger *log.Logger) *LocalNetwork {
	if logger == nil {
		logger = log.StandardLogger()
	}
	instance := &LocalNetwork{
		endpoints: make(map[commons.Address]*endpoint),
		inboxSize: DefaultInboxSize,
		log:       logger.WithField("component", "network"),
	}
	instance.SimpleService = service.NewSimpleService(instance)
	return instance
}

func (n *LocalNetwork) OnStart(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ctx = ctx
	for _, ep := range n.endpoints {
		n.startEndpoint(ep)
	}
	return nil
}

func (n *LocalNetwork) OnStop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ep := range n.endpoints {
		if ep.cancel != nil {
			ep.cancel()
		}
	}
}

// startEndpoint must be called with n.mu held.
func (n *LocalNetwork) startEndpoint(ep *endpoint) {
	ctx, cancel := context.WithCancel(n.ctx)
	ep.cancel = cancel
	go n.ReceiveRoutine(ctx, ep)
}

func (n *LocalNetwork) ReceiveRoutine(ctx context.Context, ep *endpoint) {
	for {
		select {
		case msg := <-ep.inbox:
			ep.receiver.Up(msg)
		case <-ctx.Done():
			return
		}
	}
}

// Join registers addr and returns the Transport that node must use to send.
func (n *LocalNetwork) Join(addr commons.Address, receiver Receiver) (*Link, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, found := n.endpoints[addr]; found {
		return nil, fmt.Errorf("join %s: address already in use", addr)
	}
	ep := &endpoint{
		addr:      addr,
		receiver:  receiver,
		inbox:     make(chan *commons.Message, n.inboxSize),
		reachable: true,
	}
	n.endpoints[addr] = ep
	if n.ctx != nil {
		n.startEndpoint(ep)
	}
	n.log.Debug("node joined ", addr)
	return n.Link(addr), nil
}

// Link returns the sending side of addr without joining it. Nodes that must be
// built before they can receive use it to get their Transport first.
func (n *LocalNetwork) Link(from commons.Address) *Link {
	return &Link{network: n, from: from}
}

func (n *LocalNetwork) Leave(addr commons.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, found := n.endpoints[addr]; found {
		if ep.cancel != nil {
			ep.cancel()
		}
		delete(n.endpoints, addr)
		n.log.Debug("node left ", addr)
	}
}

// SetReachable makes every unicast to addr fail while reachable is false.
func (n *LocalNetwork) SetReachable(addr commons.Address, reachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, found := n.endpoints[addr]; found {
		ep.reachable = reachable
	}
}

func (n *LocalNetwork) Members() []commons.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	members := make([]commons.Address, 0, len(n.endpoints))
	for addr := range n.endpoints {
		members = append(members, addr)
	}
	return members
}

func (n *LocalNetwork) unicast(to commons.Address, msg *commons.Message) error {
	n.mu.RLock()
	ep, found := n.endpoints[to]
	reachable := found && ep.reachable
	n.mu.RUnlock()
	if !n.IsRunning() {
		return ErrNotRunning
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, to)
	}
	if !reachable {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	select {
	case ep.inbox <- msg:
		return nil
	case <-n.Done():
		return ErrNotRunning
	}
}

// Link is the sending side of one node.
type Link struct {
	network *LocalNetwork
	from    commons.Address
}

func (l *Link) Unicast(to commons.Address, msg *commons.Message) error {
	return l.network.unicast(to, msg)
}
