package service

import (
	"context"
)

type Service interface {
	Start(ctx context.Context) error
	IsRunning() bool
	// Serve blocks until the service is stopped.
	Serve()
	Stop()
}

type StartStopCallback interface {
	// OnStart receives a context that is cancelled once the service stops.
	OnStart(ctx context.Context) error
	OnStop()
}
