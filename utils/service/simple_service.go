package service

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrServiceAlreadyStopped = errors.New("service already stopped")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

type SimpleService struct {
	mu          sync.Mutex
	state       state
	cancel      context.CancelFunc
	done        chan struct{}
	startStopCb StartStopCallback
}

func NewSimpleService(startStopCb StartStopCallback) *SimpleService {
	return &SimpleService{
		done:        make(chan struct{}),
		startStopCb: startStopCb,
	}
}

// Start is a no-op on a running service. A stopped service cannot be restarted.
func (s *SimpleService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrServiceAlreadyStopped
	}
	wrappedCtx, cancel := context.WithCancel(ctx)
	if err := s.startStopCb.OnStart(wrappedCtx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.state = stateRunning
	go func() {
		<-wrappedCtx.Done()
		s.Stop()
	}()
	return nil
}

func (s *SimpleService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *SimpleService) Serve() {
	<-s.done
}

func (s *SimpleService) Done() <-chan struct{} {
	return s.done
}

func (s *SimpleService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return
	}
	s.state = stateStopped
	s.startStopCb.OnStop()
	s.cancel()
	close(s.done)
}
