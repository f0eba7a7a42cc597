package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
)

const shutdownTimeout = 10 * time.Second

// Run serves the dashboard API on addr and runs a control cycle every
// interval until ctx is cancelled
func (s *Service) Run(ctx context.Context, addr string, interval time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.serve(ctx, ln, interval)
}

func (s *Service) serve(ctx context.Context, ln net.Listener, interval time.Duration) error {
	scheduler := gocron.NewScheduler(s.Config.Location())
	scheduler.SingletonModeAll()
	if _, err := scheduler.Every(interval).Do(s.cycle, ctx); err != nil {
		ln.Close()
		return fmt.Errorf("scheduling control cycle: %w", err)
	}

	srv := &http.Server{Handler: s.API().Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Dashboard API listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	scheduler.StartAsync()
	s.log.Infof("Control cycle every %s", interval)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("shutting down API: %w", err))
	}
	return serveErr
}

func (s *Service) cycle(ctx context.Context) {
	if err := s.Planner.Run(ctx, time.Now()); err != nil {
		s.log.Errorf("Control cycle failed: %v", err)
	}
}
