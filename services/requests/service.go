// Package requests owns the lifecycle of a records request: it is
// created pending payment, confirmed by the payment processor's
// webhook, submitted to the Phoenix PD portal by the worker, then
// reconciled to completion.
package requests

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"municipalrecords-backend/lib/sanitize"
	"municipalrecords-backend/lib/scrapers/phoenixpd"
	"municipalrecords-backend/lib/timezone"
	"municipalrecords-backend/services/requests/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/requests")

type Status string

const (
	StatusPendingPayment   Status = "pending_payment"
	StatusPaymentConfirmed Status = "payment_confirmed"
	StatusSubmitting       Status = "submitting"
	StatusSubmitted        Status = "submitted"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusPaymentFailed    Status = "payment_failed"
	StatusRefunded         Status = "refunded"
)

// a request gets this many portal attempts before it is failed for good
const MaxAttempts = 3

type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(database *sql.DB) Service {
	return Service{
		db:  database,
		qry: db.New(database),
	}
}

type CreateRequestInput struct {
	ReportType   phoenixpd.ReportType
	CaseNumber   string
	Contact      sanitize.ContactInfo
	IncidentDate time.Time
}

// CreateRequest records a new request in pending_payment. The base
// fee comes from the report type table, never from the caller.
func (s Service) CreateRequest(ctx context.Context, input CreateRequestInput) (int64, error) {
	ctx, span := tracer.Start(ctx, "CreateRequest")
	defer span.End()

	span.SetAttributes(attribute.String("report_type", string(input.ReportType)))

	config, ok := phoenixpd.ReportConfigs[input.ReportType]
	if !ok {
		err := fmt.Errorf("unknown report type %q", input.ReportType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	var incidentDate int64
	if !input.IncidentDate.IsZero() {
		incidentDate = input.IncidentDate.Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	id, err := txqry.CreateRequest(ctx, db.CreateRequestParams{
		ReportType:   string(input.ReportType),
		CaseNumber:   input.CaseNumber,
		FirstName:    input.Contact.FirstName,
		LastName:     input.Contact.LastName,
		Email:        input.Contact.Email,
		Phone:        input.Contact.Phone,
		Address:      input.Contact.Address,
		IncidentDate: incidentDate,
		AmountCents:  config.BaseFeeCents,
		CreatedAt:    timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: id,
		Action:    "request_created",
		Details:   fmt.Sprintf("%s, fee %d cents", config.DisplayName, config.BaseFeeCents),
		CreatedAt: timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return id, nil
}

// ConfirmPayment moves a request from pending_payment to
// payment_confirmed. Replays of the same payment reference are
// acknowledged without effect, any other state mismatch is
// db.ErrConflict.
func (s Service) ConfirmPayment(ctx context.Context, requestId int64, paymentRef string, amountCents int64) error {
	ctx, span := tracer.Start(ctx, "ConfirmPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("request_id", requestId),
		attribute.String("payment_ref", paymentRef),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	rows, err := txqry.ConfirmPayment(ctx, db.ConfirmPaymentParams{
		PaymentRef:  paymentRef,
		AmountCents: amountCents,
		ID:          requestId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if rows == 0 {
		request, err := txqry.GetRequest(ctx, requestId)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		// webhook replay for a payment we already recorded
		if request.PaymentRef == paymentRef {
			return nil
		}
		span.SetStatus(codes.Error, "conflicting payment confirmation")
		return fmt.Errorf("%w: request %d is %q", db.ErrConflict, requestId, request.Status)
	}

	err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: requestId,
		Action:    "payment_confirmed",
		Details:   fmt.Sprintf("ref %s, %d cents", paymentRef, amountCents),
		CreatedAt: timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return tx.Commit()
}

func (s Service) GetRequest(ctx context.Context, id int64) (db.Request, error) {
	return s.qry.GetRequest(ctx, id)
}

func (s Service) ListRequests(ctx context.Context, status string, limit int64) ([]db.Request, error) {
	if limit <= 0 {
		limit = 50
	}
	if status == "" {
		return s.qry.ListRequests(ctx, limit)
	}
	return s.qry.ListRequestsByStatus(ctx, db.ListRequestsByStatusParams{
		Status: status,
		Limit:  limit,
	})
}

func (s Service) ListEvents(ctx context.Context, requestId int64) ([]db.RequestEvent, error) {
	return s.qry.ListRequestEvents(ctx, requestId)
}

// toSubmission maps a stored request onto the engine's input. Raw
// values go in as stored, sanitization belongs to the engine.
func toSubmission(request db.Request) phoenixpd.SubmissionRequest {
	var incidentDate time.Time
	if request.IncidentDate > 0 {
		incidentDate = time.Unix(request.IncidentDate, 0).In(timezone.Location)
	}
	return phoenixpd.SubmissionRequest{
		ReportType: phoenixpd.ReportType(request.ReportType),
		CaseNumber: request.CaseNumber,
		Contact: sanitize.ContactInfo{
			FirstName: request.FirstName,
			LastName:  request.LastName,
			Email:     request.Email,
			Phone:     request.Phone,
			Address:   request.Address,
		},
		IncidentDate: incidentDate,
	}
}

// recordOutcome applies one submission attempt's result. A submitted
// outcome keeps the retry counter where it was, everything else
// consumes an attempt and fails the request at the ceiling.
func (s Service) recordOutcome(ctx context.Context, request db.Request, outcome phoenixpd.SubmissionOutcome) error {
	ctx, span := tracer.Start(ctx, "recordOutcome")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("request_id", request.ID),
		attribute.String("status", string(outcome.Status)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)
	now := timezone.Now().Unix()

	if outcome.Status == phoenixpd.StatusSubmitted {
		var synthetic int64
		if outcome.SyntheticConfirmation {
			synthetic = 1
		}
		err = txqry.MarkSubmitted(ctx, db.MarkSubmittedParams{
			Confirmation:          outcome.Confirmation,
			SyntheticConfirmation: synthetic,
			SubmittedAt:           now,
			ID:                    request.ID,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
			RequestID: request.ID,
			Action:    "submitted_to_portal",
			Details:   fmt.Sprintf("confirmation %s", outcome.Confirmation),
			Evidence:  strings.Join(outcome.Evidence, "\n"),
			CreatedAt: now,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return tx.Commit()
	}

	retries := request.RetryCount + 1
	reason := fmt.Sprintf("%s: %s", outcome.Status, outcome.FailureReason)

	if retries >= MaxAttempts {
		err = txqry.MarkFailed(ctx, db.MarkFailedParams{
			FailureReason: reason,
			RetryCount:    retries,
			ID:            request.ID,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
			RequestID: request.ID,
			Action:    "submission_failed",
			Details:   fmt.Sprintf("gave up after %d attempts: %s", retries, reason),
			Evidence:  strings.Join(outcome.Evidence, "\n"),
			IsError:   1,
			CreatedAt: now,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return tx.Commit()
	}

	err = txqry.RevertToPaymentConfirmed(ctx, db.RevertToPaymentConfirmedParams{
		FailureReason: reason,
		RetryCount:    retries,
		ID:            request.ID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: request.ID,
		Action:    "submission_retry",
		Details:   fmt.Sprintf("attempt %d of %d: %s", retries, MaxAttempts, reason),
		Evidence:  strings.Join(outcome.Evidence, "\n"),
		IsError:   1,
		CreatedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return tx.Commit()
}

// Requeue gives a failed request a fresh retry budget. It refuses to
// touch requests in any other state.
func (s Service) Requeue(ctx context.Context, requestId int64) error {
	ctx, span := tracer.Start(ctx, "Requeue")
	defer span.End()

	span.SetAttributes(attribute.Int64("request_id", requestId))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	rows, err := txqry.RequeueFailed(ctx, requestId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if rows == 0 {
		request, err := txqry.GetRequest(ctx, requestId)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return fmt.Errorf("%w: request %d is %q", db.ErrConflict, requestId, request.Status)
	}

	err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: requestId,
		Action:    "requeued",
		Details:   "retry budget reset by operator",
		CreatedAt: timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return tx.Commit()
}

// recordCompletion closes out a submitted request once the portal
// reports the records ready.
func (s Service) recordCompletion(ctx context.Context, requestId int64) error {
	ctx, span := tracer.Start(ctx, "recordCompletion")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)
	now := timezone.Now().Unix()

	err = txqry.MarkCompleted(ctx, db.MarkCompletedParams{
		CompletedAt: now,
		ID:          requestId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = txqry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: requestId,
		Action:    "request_completed",
		Details:   "records ready for pickup",
		CreatedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return tx.Commit()
}

func (s Service) recordStatusCheck(ctx context.Context, requestId int64, observed phoenixpd.RequestStatus) error {
	return s.qry.CreateRequestEvent(ctx, db.CreateRequestEventParams{
		RequestID: requestId,
		Action:    "status_checked",
		Details:   string(observed),
		CreatedAt: timezone.Now().Unix(),
	})
}
