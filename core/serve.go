package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ShutdownGrace bounds how long in-flight requests may run after a stop signal.
const ShutdownGrace = 5 * time.Second

// Serve runs srv until ctx is cancelled and then shuts it down, together with
// any companion servers, within grace. It returns only after every Shutdown
// call has finished, so callers can release the pool and log file afterwards.
// A nil ln makes srv listen on its own Addr.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, companions ...*http.Server) error {
	served := make(chan error, 1)
	go func() {
		if ln != nil {
			served <- srv.Serve(ln)
			return
		}
		served <- srv.ListenAndServe()
	}()

	var errs []error
	select {
	case err := <-served:
		// Listener failed before any stop signal.
		if !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("serve %s: %w", srv.Addr, err))
		}
		served = nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	for _, s := range companions {
		if err := s.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", s.Addr, err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
	}
	if served != nil {
		if err := <-served; !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("serve %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}
