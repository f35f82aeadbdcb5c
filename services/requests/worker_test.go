package requests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"municipalrecords-backend/lib/pacing"
	"municipalrecords-backend/lib/ratelimit"
	"municipalrecords-backend/lib/scrapers/phoenixpd"
	"municipalrecords-backend/lib/timezone"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// counter store double, no expiry semantics needed in-process
type memStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemStore() *memStore {
	return &memStore{counts: map[string]int64{}}
}

func (s *memStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

const workerLandingPage = `<html>
<head><title>Phoenix Police Department</title></head>
<body>
<a href="/request">Records Request</a>
<a href="/status">Check Status</a>
</body>
</html>`

const workerFormPage = `<html>
<head><title>Phoenix Police Department</title></head>
<body>
<form action="/submit" method="post">
<label><input type="radio" name="report_category" value="incident_report"/> Incident Report</label>
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="text" name="last_name"/>
<input type="email" name="email"/>
<button type="submit">Submit</button>
</form>
</body>
</html>`

type workerPortal struct {
	server *httptest.Server

	mu         sync.Mutex
	submits    int
	formPage   string
	statusText string
}

func newWorkerPortal(t *testing.T) *workerPortal {
	p := &workerPortal{
		formPage:   workerFormPage,
		statusText: "Processing",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, workerLandingPage)
	})
	mux.HandleFunc("/request", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		page := p.formPage
		p.mu.Unlock()
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.submits++
		p.mu.Unlock()
		fmt.Fprint(w, `<html><head><title>Phoenix PD</title></head>
<body>Confirmation #: REQ-2024-0042</body></html>`)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		status := p.statusText
		p.mu.Unlock()
		fmt.Fprintf(w, `<html><head><title>Phoenix PD</title></head>
<body><table><tr><td>REQ-2024-0042</td><td>%s</td></tr></table></body></html>`, status)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *workerPortal) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

func (p *workerPortal) sessionFactory(t *testing.T) func(string) (*phoenixpd.Session, error) {
	dir := t.TempDir()
	return func(runId string) (*phoenixpd.Session, error) {
		return phoenixpd.NewSession(phoenixpd.SessionOptions{
			PortalUrl:   p.server.URL,
			EvidenceDir: dir,
			RunId:       runId,
			Pace:        pacing.Instant(),
			UserAgent:   "test-agent",
			Timeout:     time.Second * 10,
		})
	}
}

func setupWorker(t *testing.T, portal *workerPortal, ceiling int64) (Service, *Worker) {
	service := setupService(t)
	worker := NewWorker(service, WorkerOptions{
		Cooldown:   pacing.Range{Min: time.Millisecond, Max: time.Millisecond * 2},
		Limiter:    ratelimit.NewLimiter(newMemStore(), "test", ceiling),
		NewSession: portal.sessionFactory(t),
	})
	return service, worker
}

func confirmedRequest(t *testing.T, service Service, paymentRef string) int64 {
	ctx := context.Background()
	id, err := service.CreateRequest(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, service.ConfirmPayment(ctx, id, paymentRef, 500))
	return id
}

func TestWorkerSubmitsConfirmedRequest(t *testing.T) {
	portal := newWorkerPortal(t)
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")
	worker.RunPass(ctx)

	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusSubmitted), request.Status)
	require.Equal(t, "REQ-2024-0042", request.Confirmation)
	require.Equal(t, int64(0), request.RetryCount)
	require.Equal(t, 1, portal.submitCount())
}

func TestWorkerRetriesThenFails(t *testing.T) {
	portal := newWorkerPortal(t)
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body><p>Nothing here.</p></body></html>`
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		worker.RunPass(ctx)
		request, err := service.GetRequest(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(attempt), request.RetryCount)
	}

	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusFailed), request.Status)

	// failed requests are out of the pool for good
	worker.RunPass(ctx)
	request, err = service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(MaxAttempts), request.RetryCount)
	require.Equal(t, 0, portal.submitCount())
}

func TestWorkerRateLimitDefersWithoutRetry(t *testing.T) {
	portal := newWorkerPortal(t)
	service, worker := setupWorker(t, portal, 1)
	ctx := context.Background()

	first := confirmedRequest(t, service, "pay_1")
	second := confirmedRequest(t, service, "pay_2")

	worker.RunPass(ctx)

	request, err := service.GetRequest(ctx, first)
	require.NoError(t, err)
	require.Equal(t, string(StatusSubmitted), request.Status)

	// the deferred request is untouched, no retry consumed
	request, err = service.GetRequest(ctx, second)
	require.NoError(t, err)
	require.Equal(t, string(StatusPaymentConfirmed), request.Status)
	require.Equal(t, int64(0), request.RetryCount)
	require.Equal(t, 1, portal.submitCount())
}

func TestWorkerPanicConsumesRetry(t *testing.T) {
	service := setupService(t)
	worker := NewWorker(service, WorkerOptions{
		Cooldown: pacing.Range{Min: time.Millisecond, Max: time.Millisecond * 2},
		Limiter:  ratelimit.NewLimiter(newMemStore(), "test", 10),
		NewSession: func(runId string) (*phoenixpd.Session, error) {
			panic("engine blew up")
		},
	})
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")
	worker.RunPass(ctx)

	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusPaymentConfirmed), request.Status)
	require.Equal(t, int64(1), request.RetryCount)

	events, err := service.ListEvents(ctx, id)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, "submission_retry", last.Action)
	require.Contains(t, last.Details, "panic")
}

func TestWorkerReconcilesStaleSubmitted(t *testing.T) {
	portal := newWorkerPortal(t)
	portal.statusText = "Ready for download"
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")
	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.NoError(t, service.recordOutcome(ctx, request, phoenixpd.SubmissionOutcome{
		Status:       phoenixpd.StatusSubmitted,
		Confirmation: "REQ-2024-0042",
	}))

	// age the submission past the reconcile cutoff
	_, err = service.db.Exec(
		"UPDATE requests SET submitted_at = ? WHERE id = ?",
		timezone.Now().Add(-2*time.Hour).Unix(), id,
	)
	require.NoError(t, err)

	worker.RunPass(ctx)

	request, err = service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusCompleted), request.Status)
	require.NotZero(t, request.CompletedAt)

	events, err := service.ListEvents(ctx, id)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, "request_completed", last.Action)
}

func TestWorkerReconcileProcessingKeepsSubmitted(t *testing.T) {
	portal := newWorkerPortal(t)
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")
	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.NoError(t, service.recordOutcome(ctx, request, phoenixpd.SubmissionOutcome{
		Status:       phoenixpd.StatusSubmitted,
		Confirmation: "REQ-2024-0042",
	}))
	_, err = service.db.Exec(
		"UPDATE requests SET submitted_at = ? WHERE id = ?",
		timezone.Now().Add(-2*time.Hour).Unix(), id,
	)
	require.NoError(t, err)

	worker.RunPass(ctx)

	request, err = service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusSubmitted), request.Status)

	events, err := service.ListEvents(ctx, id)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, "status_checked", last.Action)
	require.Equal(t, "processing", last.Details)
}

func TestWorkerReclaimsStrandedSubmitting(t *testing.T) {
	portal := newWorkerPortal(t)
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	// a crash between claiming the request and recording its outcome
	// leaves the row in submitting with nothing pointing at it
	id := confirmedRequest(t, service, "pay_1")
	_, err := service.db.Exec(
		"UPDATE requests SET status = 'submitting', last_attempt_at = ? WHERE id = ?",
		timezone.Now().Add(-2*time.Hour).Unix(), id,
	)
	require.NoError(t, err)

	worker.RunPass(ctx)

	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusSubmitted), request.Status)
	require.Equal(t, int64(0), request.RetryCount)
	require.Equal(t, 1, portal.submitCount())
}

func TestWorkerLeavesFreshSubmittingAlone(t *testing.T) {
	portal := newWorkerPortal(t)
	service, worker := setupWorker(t, portal, 10)
	ctx := context.Background()

	id := confirmedRequest(t, service, "pay_1")
	_, err := service.db.Exec(
		"UPDATE requests SET status = 'submitting', last_attempt_at = ? WHERE id = ?",
		timezone.Now().Unix(), id,
	)
	require.NoError(t, err)

	worker.RunPass(ctx)

	// still inside the stale window: another worker may own it
	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(StatusSubmitting), request.Status)
	require.Equal(t, 0, portal.submitCount())
}
