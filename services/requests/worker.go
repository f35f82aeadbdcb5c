package requests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"municipalrecords-backend/lib/pacing"
	"municipalrecords-backend/lib/ratelimit"
	"municipalrecords-backend/lib/scrapers/phoenixpd"
	"municipalrecords-backend/lib/timezone"
	"municipalrecords-backend/services/requests/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type WorkerOptions struct {
	// polling interval, 60s when zero
	Interval time.Duration
	// max submissions pulled per pass, 10 when zero
	BatchSize int64
	// spacing between successive portal submissions in one pass
	Cooldown pacing.Range
	// how long a submitted request sits before its status is
	// rechecked on the portal, 1h when zero
	StaleAfter time.Duration

	Limiter *ratelimit.Limiter
	// fresh engine session per submission, runId namespaces evidence
	NewSession func(runId string) (*phoenixpd.Session, error)
	// nil disables email notifications
	Notifier *Notifier
}

// Worker drains payment_confirmed requests into the portal one at a
// time. Submissions are strictly sequential: the portal sees one
// visitor, never a burst.
type Worker struct {
	svc  Service
	opts WorkerOptions
}

func NewWorker(svc Service, opts WorkerOptions) *Worker {
	if opts.Interval == 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 10
	}
	if opts.Cooldown == (pacing.Range{}) {
		opts.Cooldown = pacing.Between()
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = time.Hour
	}
	return &Worker{svc: svc, opts: opts}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		w.RunPass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunPass executes one polling pass: reclaim anything stranded
// mid-submission by a crash, submit what the budget allows, then
// reconcile stale submissions.
func (w *Worker) RunPass(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "worker.RunPass")
	defer span.End()

	w.releaseStranded(ctx)
	w.submitPending(ctx)
	w.reconcile(ctx)
}

// releaseStranded returns requests stuck in submitting back to the
// queue. A row only stays in that state when the process died between
// claiming it and recording the outcome, so anything older than the
// stale window is safe to reclaim.
func (w *Worker) releaseStranded(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "worker.releaseStranded")
	defer span.End()

	cutoff := timezone.Now().Add(-w.opts.StaleAfter).Unix()
	rows, err := w.svc.qry.ReleaseStaleSubmitting(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to release stranded submissions", "err", err)
		return
	}
	if rows > 0 {
		span.SetAttributes(attribute.Int64("released", rows))
		slog.WarnContext(ctx, "released requests stranded in submitting", "count", rows)
	}
}

func (w *Worker) submitPending(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "worker.submitPending")
	defer span.End()

	pending, err := w.svc.qry.GetSubmittableRequests(ctx, db.GetSubmittableRequestsParams{
		RetryCount: MaxAttempts,
		Limit:      w.opts.BatchSize,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to pull submittable requests", "err", err)
		return
	}
	span.SetAttributes(attribute.Int("pending", len(pending)))

	for i, request := range pending {
		ok, err := w.opts.Limiter.TryAcquire(ctx)
		if err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "rate limit store unavailable", "err", err)
			return
		}
		if !ok {
			// deferral, not a failure: the request keeps its retry
			// budget and the next pass picks it up again
			slog.WarnContext(ctx, "hourly submission budget exhausted, deferring",
				"request_id", request.ID, "remaining", len(pending)-i)
			return
		}

		rows, err := w.svc.qry.MarkSubmitting(ctx, db.MarkSubmittingParams{
			LastAttemptAt: timezone.Now().Unix(),
			ID:            request.ID,
		})
		if err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "failed to mark request submitting",
				"request_id", request.ID, "err", err)
			return
		}
		if rows == 0 {
			// someone else moved it since the pull
			continue
		}

		outcome := w.submit(ctx, request)
		slog.InfoContext(ctx, "submission attempt finished",
			"request_id", request.ID,
			"status", outcome.Status,
			"confirmation", outcome.Confirmation)

		if err := w.svc.recordOutcome(ctx, request, outcome); err != nil {
			slog.ErrorContext(ctx, "failed to record submission outcome",
				"request_id", request.ID, "err", err)
			return
		}

		if outcome.Status == phoenixpd.StatusSubmitted && w.opts.Notifier != nil {
			if err := w.opts.Notifier.SubmissionConfirmed(ctx, request, outcome.Confirmation); err != nil {
				slog.WarnContext(ctx, "failed to send confirmation email",
					"request_id", request.ID, "err", err)
			}
		}

		if i < len(pending)-1 {
			if err := w.opts.Cooldown.Sleep(ctx); err != nil {
				return
			}
		}
	}
}

// submit is the boundary between the orchestrator and the engine:
// whatever goes wrong in there, including a panic, comes back as an
// outcome that consumes one retry.
func (w *Worker) submit(ctx context.Context, request db.Request) (outcome phoenixpd.SubmissionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "submission engine panicked",
				"request_id", request.ID, "panic", r)
			outcome = phoenixpd.SubmissionOutcome{
				Status:        phoenixpd.StatusUnknownError,
				FailureReason: fmt.Sprintf("engine panic: %v", r),
			}
		}
	}()

	session, err := w.opts.NewSession(fmt.Sprintf("req%d", request.ID))
	if err != nil {
		return phoenixpd.SubmissionOutcome{
			Status:        phoenixpd.StatusUnknownError,
			FailureReason: fmt.Sprintf("session setup: %v", err),
		}
	}
	return session.Submit(ctx, toSubmission(request))
}

func (w *Worker) reconcile(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "worker.reconcile")
	defer span.End()

	cutoff := timezone.Now().Add(-w.opts.StaleAfter).Unix()
	stale, err := w.svc.qry.GetStaleSubmittedRequests(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to pull stale submitted requests", "err", err)
		return
	}

	for _, request := range stale {
		if request.Confirmation == "" {
			slog.WarnContext(ctx, "submitted request has no confirmation code",
				"request_id", request.ID)
			continue
		}

		session, err := w.opts.NewSession(fmt.Sprintf("req%d-status", request.ID))
		if err != nil {
			slog.WarnContext(ctx, "failed to open status check session",
				"request_id", request.ID, "err", err)
			continue
		}
		status, err := session.CheckStatus(ctx, request.Confirmation)
		if err != nil {
			slog.WarnContext(ctx, "status check failed",
				"request_id", request.ID, "err", err)
			continue
		}

		switch status {
		case phoenixpd.RequestReady:
			if err := w.svc.recordCompletion(ctx, request.ID); err != nil {
				slog.ErrorContext(ctx, "failed to complete request",
					"request_id", request.ID, "err", err)
				continue
			}
			if w.opts.Notifier != nil {
				if err := w.opts.Notifier.RecordsReady(ctx, request); err != nil {
					slog.WarnContext(ctx, "failed to send records ready email",
						"request_id", request.ID, "err", err)
				}
			}
		case phoenixpd.RequestProcessing:
			if err := w.svc.recordStatusCheck(ctx, request.ID, status); err != nil {
				slog.WarnContext(ctx, "failed to record status check",
					"request_id", request.ID, "err", err)
			}
		default:
			slog.DebugContext(ctx, "request status inconclusive",
				"request_id", request.ID, "confirmation", request.Confirmation)
		}
	}
}
