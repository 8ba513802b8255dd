package toa

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/toa/internal"
	"github.com/tuannh982/toa/utils/service"
)

type sendJob struct {
	destinations []commons.Address
	message      *commons.Message
}

// sendWorker performs the unicasts of DATA, PROPOSE and FINAL messages so that
// the protocol handlers never wait on the network.
type sendWorker struct {
	*service.SimpleService
	workers   int
	jobs      chan sendJob
	transport Transport
	stats     *internal.Stats
	log       *log.Entry
}

func newSendWorker(transport Transport, workers int, queueSize int, stats *internal.Stats, logger *log.Entry) *sendWorker {
	instance := &sendWorker{
		workers:   workers,
		jobs:      make(chan sendJob, queueSize),
		transport: transport,
		stats:     stats,
		log:       logger.WithField("component", "send-worker"),
	}
	instance.SimpleService = service.NewSimpleService(instance)
	return instance
}

func (w *sendWorker) OnStart(ctx context.Context) error {
	for i := 0; i < w.workers; i++ {
		go w.SendRoutine(ctx)
	}
	return nil
}

func (w *sendWorker) OnStop() {}

// Submit returns false if the worker stopped before accepting the job.
func (w *sendWorker) Submit(destinations []commons.Address, msg *commons.Message) bool {
	if len(destinations) == 0 {
		return true
	}
	select {
	case w.jobs <- sendJob{destinations: destinations, message: msg}:
		return true
	case <-w.Done():
		w.log.Warn("send worker stopped, dropping ", msg)
		return false
	}
}

func (w *sendWorker) SendRoutine(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.send(job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *sendWorker) send(job sendJob) {
	for _, to := range job.destinations {
		if err := w.unicast(to, job.message.Copy()); err != nil {
			w.stats.IncUnicastFailed()
			w.log.WithError(err).WithField("to", to).Warn("unicast failed ", job.message.Header)
			continue
		}
		w.stats.IncUnicastSent()
	}
}

func (w *sendWorker) unicast(to commons.Address, msg *commons.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return w.transport.Unicast(to, msg)
}
