package supervisor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/thejerf/suture/v4"
)

// RunFunc is a blocking unit of work that stops when ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Service adapts a RunFunc to suture.Service.
type Service struct {
	name   string
	run    RunFunc
	final  bool
	logger *slog.Logger
}

// NewService wraps run as a restartable service.
func NewService(name string, run RunFunc, logger *slog.Logger) *Service {
	return &Service{name: name, run: run, logger: logger}
}

// NewFinalService wraps run as a service whose return, for any reason,
// stops the whole tree. The player uses it for the hub connection: once
// the hub is gone or asked for shutdown the process exits.
func NewFinalService(name string, run RunFunc, logger *slog.Logger) *Service {
	return &Service{name: name, run: run, final: true, logger: logger}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	err := s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.final {
		if err != nil {
			s.logger.Info("service ended, stopping", "service", s.name, "reason", err)
		}
		return suture.ErrTerminateSupervisorTree
	}
	if err == nil {
		return errors.New(s.name + " exited unexpectedly")
	}
	return err
}

// String implements fmt.Stringer for supervisor logs.
func (s *Service) String() string {
	return s.name
}
