package toa

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/toa/internal"
	"github.com/tuannh982/toa/utils/service"
)

// deliverWorker is the only consumer of the deliver queue.
type deliverWorker struct {
	*service.SimpleService
	queue     internal.DeliverQueue
	deliverer Deliverer
	stats     *internal.Stats
	log       *log.Entry
}

func newDeliverWorker(queue internal.DeliverQueue, deliverer Deliverer, stats *internal.Stats, logger *log.Entry) *deliverWorker {
	instance := &deliverWorker{
		queue:     queue,
		deliverer: deliverer,
		stats:     stats,
		log:       logger.WithField("component", "deliver-worker"),
	}
	instance.SimpleService = service.NewSimpleService(instance)
	return instance
}

func (w *deliverWorker) OnStart(ctx context.Context) error {
	go w.DeliverRoutine()
	return nil
}

func (w *deliverWorker) OnStop() {
	w.queue.Close()
}

func (w *deliverWorker) DeliverRoutine() {
	for {
		batch, err := w.queue.DrainReadyPrefix()
		if errors.Is(err, internal.ErrQueueClosed) {
			w.log.Debug("deliver queue closed")
			return
		}
		if err != nil {
			w.log.WithError(err).Warn("drain failed")
			continue
		}
		for _, msg := range batch {
			w.deliver(msg)
		}
		w.stats.AddDelivered(len(batch))
	}
}

func (w *deliverWorker) deliver(msg *commons.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("deliverer panicked on ", msg)
		}
	}()
	w.log.Trace("deliver message in total order ", msg)
	w.deliverer.Deliver(msg)
}
