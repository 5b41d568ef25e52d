package orchestrator

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
	"github.com/terrylica/exness-data-preprocess-sub000/internal/store"
)

// Service adapts one Orchestrator run into a suture.Service so the CLI can
// supervise it: a transient failure (FetchFailed, StorageFailed) is returned
// to suture, which restarts the service (backing off after repeated
// failures), while a permanent one (ParseFailed,
// SchemaMismatch, CalendarUnavailable) stops the service outright rather
// than retrying a run that will fail identically every time.
type Service struct {
	Orchestrator *Orchestrator
	Pair         string
	StartMonth   store.YearMonth
	CurrentMonth store.YearMonth
	OnResult     func(Result)
	// OnError, if set, is called once for a permanent-kind failure, after
	// which the service stops. It is not called for a transient failure
	// (FetchFailed, StorageFailed): suture restarts the service instead, so
	// a pair that keeps failing transiently stays pending until the
	// supervisor's context ends. Callers use it to unblock a completion wait
	// that OnResult alone would never satisfy for a failing pair.
	OnError func(error)
}

// Serve runs the orchestrator once and returns. suture.ErrDoNotRestart is
// returned whenever a rerun cannot change the outcome: success, or a
// permanent-kind failure.
func (s *Service) Serve(ctx context.Context) error {
	result, err := s.Orchestrator.Run(ctx, s.Pair, s.StartMonth, s.CurrentMonth)
	if err == nil {
		if s.OnResult != nil {
			s.OnResult(result)
		}
		return suture.ErrDoNotRestart
	}

	switch domainerrors.KindOf(err) {
	case domainerrors.FetchFailed, domainerrors.StorageFailed:
		return err // transient: suture retries with backoff
	default:
		if s.OnError != nil {
			s.OnError(err)
		}
		return errors.Join(err, suture.ErrDoNotRestart)
	}
}
