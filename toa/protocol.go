package toa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/toa/internal"
	"github.com/tuannh982/toa/utils/service"
)

var errUnknownHeaderType = errors.New("unknown header type")

type (
	PendingMessage = internal.PendingInfo
	Stats          = internal.StatsSnapshot
)

// Protocol implements total order anycast with three communication steps
// (Skeen's algorithm). A message sent to a GroupAddress is delivered by all of
// its members in the same relative order as every other such message.
//
// The origin sends DATA with an initial sequence number, every destination
// answers with a PROPOSE carrying its local proposal, and the origin sends the
// maximum proposal back in a FINAL. Destinations deliver in ascending
// (final sequence number, MessageID) order.
type Protocol struct {
	*service.SimpleService
	cfg       Config
	transport Transport
	deliverer Deliverer
	// node info
	mu           sync.RWMutex
	localAddress commons.Address
	view         commons.View
	onViewChange func(old, new commons.View)
	// ordering state
	clock            *internal.SequenceClock
	tracker          internal.SenderTracker
	queue            internal.DeliverQueue
	sendLock         sync.Mutex
	messageIDCounter uint64
	// workers
	sendWorker    *sendWorker
	deliverWorker *deliverWorker
	stats         *internal.Stats
	// log
	baseLog *log.Entry
	log     *log.Entry
}

func NewProtocol(transport Transport, deliverer Deliverer, cfg Config, logger *log.Logger) *Protocol {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if deliverer == nil {
		deliverer = DelivererFunc(func(*commons.Message) {})
	}
	baseLog := logger.WithField("component", "protocol")
	instance := &Protocol{
		cfg:       cfg,
		transport: transport,
		deliverer: deliverer,
		clock:     internal.NewSequenceClock(),
		tracker:   internal.NewSenderTracker(),
		queue:     internal.NewDeliverQueue(),
		stats:     internal.NewStats(),
		baseLog:   baseLog,
		log:       baseLog,
	}
	instance.SimpleService = service.NewSimpleService(instance)
	return instance
}

func (p *Protocol) OnStart(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if p.LocalAddress() == "" {
		return ErrNoLocalAddress
	}
	logger := p.logger()
	p.sendWorker = newSendWorker(p.transport, p.cfg.SendWorkers, p.cfg.SendQueueSize, p.stats, logger)
	p.deliverWorker = newDeliverWorker(p.queue, p.deliverer, p.stats, logger)
	if err := p.sendWorker.Start(ctx); err != nil {
		return err
	}
	if err := p.deliverWorker.Start(ctx); err != nil {
		p.sendWorker.Stop()
		return err
	}
	if p.cfg.ReportInterval > 0 {
		go p.ReportRoutine(ctx, p.cfg.ReportInterval)
	}
	logger.Debug("protocol started")
	return nil
}

func (p *Protocol) OnStop() {
	p.sendWorker.Stop()
	p.deliverWorker.Stop()
	p.logger().Debug("protocol stopped")
}

func (p *Protocol) ReportRoutine(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	for {
		select {
		case <-timer.C:
			p.logger().WithFields(log.Fields{
				"clock":       p.clock.Get(),
				"queued":      p.queue.Size(),
				"outstanding": p.tracker.Size(),
			}).Debug("REPORT")
			timer.Reset(interval)
		case <-ctx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			return
		}
	}
}

func (p *Protocol) SetLocalAddress(addr commons.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localAddress = addr
	p.log = p.baseLog.WithField("node", string(addr))
}

func (p *Protocol) LocalAddress() commons.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.localAddress
}

func (p *Protocol) logger() *log.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.log
}

// OnViewChange registers a hook called after every installed view. Messages of
// members that left are not purged.
func (p *Protocol) OnViewChange(f func(old, new commons.View)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onViewChange = f
}

func (p *Protocol) ViewChanged(view commons.View) {
	p.mu.Lock()
	old := p.view
	p.view = view
	hook := p.onViewChange
	p.mu.Unlock()
	member := view.Contains(p.LocalAddress())
	logger := p.logger().WithFields(log.Fields{
		"view":   view.ID,
		"member": member,
	})
	if member {
		logger.Debug("view installed ", view.Members)
	} else {
		logger.Warn("view installed without the local node ", view.Members)
	}
	if hook != nil {
		hook(old, view)
	}
}

func (p *Protocol) View() commons.View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

func (p *Protocol) Stats() Stats {
	return p.stats.Snapshot()
}

// PendingMessages lists the messages waiting in the deliver queue, in order.
func (p *Protocol) PendingMessages() []PendingMessage {
	return p.queue.Pending()
}

// OutstandingSends lists the local multicasts still waiting for proposals.
func (p *Protocol) OutstandingSends() []commons.MessageID {
	return p.tracker.Pending()
}

// Down sends msg towards the network. Only invalid arguments are reported;
// delivery itself is asynchronous and best effort.
func (p *Protocol) Down(msg *commons.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if !p.IsRunning() {
		return ErrNotStarted
	}
	switch dest := msg.Dest.(type) {
	case commons.Address:
		out := msg.Copy()
		out.Src = p.LocalAddress()
		p.sendWorker.Submit([]commons.Address{dest}, out)
		return nil
	case *commons.GroupAddress:
		if dest == nil {
			return ErrNoDestination
		}
		if msg.IsFlagSet(commons.NoTotalOrder) {
			out := msg.Copy()
			out.Src = p.LocalAddress()
			p.sendWorker.Submit(dest.Addresses(), out)
			return nil
		}
		switch dest.Size() {
		case 0:
			return ErrEmptyDestination
		case 1:
			return p.sendSingleDestinationMessage(dest.Addresses()[0], msg)
		default:
			return p.sendTotalOrderAnycastMessage(dest, msg)
		}
	default:
		return ErrNoDestination
	}
}

func (p *Protocol) generateID() commons.MessageID {
	id := commons.MessageID{
		Origin:  p.LocalAddress(),
		Counter: p.messageIDCounter,
	}
	p.messageIDCounter++
	return id
}

func (p *Protocol) sendSingleDestinationMessage(to commons.Address, msg *commons.Message) error {
	p.sendLock.Lock()
	id := p.generateID()
	p.sendLock.Unlock()
	out := msg.Copy()
	out.Src = id.Origin
	out.Header = &commons.Header{
		Type: commons.SingleDestinationMessage,
		ID:   id,
	}
	if to == id.Origin {
		p.logger().Trace("deliver single destination message locally ", id)
		return p.queue.DeliverSingle(id, out, p.clock.Get())
	}
	p.logger().Trace("send single destination message ", id, " to ", to)
	p.sendWorker.Submit([]commons.Address{to}, out)
	return nil
}

func (p *Protocol) sendTotalOrderAnycastMessage(group *commons.GroupAddress, msg *commons.Message) error {
	local := p.LocalAddress()
	destinations := group.Addresses()
	deliverToMyself := group.Contains(local)
	out := msg.Copy()
	out.Src = local
	header := &commons.Header{
		Type:         commons.DataMessage,
		Destinations: destinations,
	}
	out.Header = header

	p.sendLock.Lock()
	header.ID = p.generateID()
	if deliverToMyself {
		seq, err := p.queue.StageNext(header.ID, out, p.clock.GetAndIncrement)
		if err != nil {
			p.sendLock.Unlock()
			return err
		}
		header.Sequence = seq
	} else {
		header.Sequence = p.clock.GetAndIncrement()
	}
	p.sendLock.Unlock()

	if err := p.tracker.Begin(header.ID, destinations, header.Sequence, deliverToMyself); err != nil {
		if deliverToMyself {
			_ = p.queue.Remove(header.ID)
		}
		return err
	}
	p.stats.IncAnycastSent()
	p.logger().Trace("send total order anycast message ", header, " to ", group)
	p.sendWorker.Submit(withoutAddress(destinations, local), out)
	return nil
}

// Up handles a message coming from the layer below.
func (p *Protocol) Up(msg *commons.Message) {
	if msg == nil {
		return
	}
	if !p.IsRunning() {
		p.logger().Debug("protocol not running, dropping ", msg)
		return
	}
	header := msg.Header
	defer func() {
		if r := recover(); r != nil {
			p.stats.IncAnomaly()
			p.logger().WithFields(log.Fields{
				"panic":  r,
				"header": header,
			}).Error("panic while handling message, dropping it")
		}
	}()
	if header == nil {
		p.deliverer.Deliver(msg)
		return
	}
	var err error
	switch header.Type {
	case commons.DataMessage:
		err = p.handleDataMessage(msg, header)
	case commons.ProposeMessage:
		err = p.handleSequenceNumberPropose(msg.Src, header)
	case commons.FinalMessage:
		err = p.handleFinalSequenceNumber(header)
	case commons.SingleDestinationMessage:
		p.logger().Trace("received single destination message ", header.ID)
		err = p.queue.DeliverSingle(header.ID, msg, p.clock.Get())
	default:
		err = fmt.Errorf("%w: %s", errUnknownHeaderType, header.Type)
	}
	if err != nil {
		p.stats.IncAnomaly()
		p.logger().WithError(err).WithFields(log.Fields{
			"id":    header.ID.String(),
			"phase": header.Type.String(),
			"from":  string(msg.Src),
		}).Warn("dropping message")
	}
}

func (p *Protocol) handleDataMessage(msg *commons.Message, header *commons.Header) error {
	p.stats.IncDataReceived()
	proposal, err := p.queue.StageNext(header.ID, msg, func() uint64 {
		return p.clock.UpdateAndGet(header.Sequence)
	})
	if err != nil {
		return err
	}
	p.logger().Trace("received data message ", header, ", proposed sequence number ", proposal)
	propose := &commons.Message{
		Src:   p.LocalAddress(),
		Dest:  header.ID.Origin,
		Flags: commons.Internal,
		Header: &commons.Header{
			Type:     commons.ProposeMessage,
			ID:       header.ID,
			Sequence: proposal,
		},
	}
	p.stats.IncProposeSent()
	p.sendWorker.Submit([]commons.Address{header.ID.Origin}, propose)
	return nil
}

func (p *Protocol) handleSequenceNumberPropose(from commons.Address, header *commons.Header) error {
	p.stats.IncProposeReceived()
	p.clock.Update(header.Sequence)
	finalSeq, last, err := p.tracker.AddProposal(header.ID, from, header.Sequence)
	if err != nil || !last {
		return err
	}
	destinations, deliverToMyself, err := p.tracker.Finalize(header.ID)
	if err != nil {
		return err
	}
	p.logger().Trace("message ", header.ID, " is ready to be delivered, final sequence number is ", finalSeq)
	final := &commons.Message{
		Src:   p.LocalAddress(),
		Flags: commons.Internal,
		Header: &commons.Header{
			Type:     commons.FinalMessage,
			ID:       header.ID,
			Sequence: finalSeq,
		},
	}
	p.stats.IncFinalSent()
	p.sendWorker.Submit(destinations, final)
	if deliverToMyself {
		p.clock.Update(finalSeq)
		return p.queue.Finalize(header.ID, finalSeq)
	}
	return nil
}

func (p *Protocol) handleFinalSequenceNumber(header *commons.Header) error {
	p.stats.IncFinalReceived()
	p.logger().Trace("received final sequence number ", header)
	p.clock.Update(header.Sequence)
	return p.queue.Finalize(header.ID, header.Sequence)
}

func withoutAddress(addrs []commons.Address, a commons.Address) []commons.Address {
	out := make([]commons.Address, 0, len(addrs))
	for _, x := range addrs {
		if x != a {
			out = append(out, x)
		}
	}
	return out
}
