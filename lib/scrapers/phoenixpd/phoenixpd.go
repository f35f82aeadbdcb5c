// Package phoenixpd drives the Phoenix PD public-safety portal's
// records request form. The portal has no API: this client fills and
// submits the same web form a human would, with human-plausible
// pacing, and records page evidence at every step.
package phoenixpd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/cookiejar"
	"net/url"
	"time"

	"municipalrecords-backend/lib/evidence"
	"municipalrecords-backend/lib/pacing"
	"municipalrecords-backend/lib/proxy"
	"municipalrecords-backend/lib/sanitize"
	"municipalrecords-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/phoenixpd")

// Stage failure kinds. The orchestrator's retry policy reasons about
// these, never about raw transport errors.
var (
	ErrNavigationTimeout     = errors.New("portal landing page did not load")
	ErrFormNotFound          = errors.New("records request form not found")
	ErrCategoryNotSelectable = errors.New("report type could not be selected")
	ErrInsufficientFields    = errors.New("too few form fields could be filled")
	ErrSubmitControlNotFound = errors.New("submit control not found")
)

type OutcomeStatus string

const (
	StatusSubmitted          OutcomeStatus = "submitted"
	StatusFormNotFound       OutcomeStatus = "form_not_found"
	StatusValidationRejected OutcomeStatus = "validation_rejected"
	StatusTimeout            OutcomeStatus = "timeout"
	StatusUnknownError       OutcomeStatus = "unknown_error"
)

// SubmissionOutcome is the engine's result for one submission
// attempt. The orchestrator copies what it needs into the request
// record and discards it.
type SubmissionOutcome struct {
	Status       OutcomeStatus
	Confirmation string
	// set when no confirmation pattern matched and the code was
	// synthesized locally
	SyntheticConfirmation bool
	Evidence              []string
	RawConfirmation       string
	FailureReason         string
}

type SessionOptions struct {
	PortalUrl   string
	EvidenceDir string
	// run identifier namespacing this session's evidence artifacts
	RunId string
	// nil means connect directly
	Proxy proxy.Strategy
	Pace  pacing.Profile
	// overrides the rotating user agent, used in tests
	UserAgent string
	Timeout   time.Duration
}

// Session owns a single browser-equivalent session: one cookie jar,
// one proxy identity, one submission end to end. Sessions are not
// shared or pooled.
type Session struct {
	http     *resty.Client
	baseUrl  *url.URL
	pace     pacing.Profile
	evidence *evidence.Recorder

	// current page state
	pageUrl *url.URL
	pageDoc *goquery.Document
	pageRaw []byte
}

func NewSession(opts SessionOptions) (*Session, error) {
	baseUrl, err := url.Parse(opts.PortalUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.PortalUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = browser.Chrome()
	}
	client.SetHeader("user-agent", userAgent)
	client.SetHeaders(map[string]string{
		"accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"accept-language":           "en-US,en;q=0.9",
		"upgrade-insecure-requests": "1",
	})

	if opts.Proxy != nil {
		if p := opts.Proxy.Next(); p != "" {
			client.SetProxy(p)
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "scrapers/phoenixpd/http")

	var recorder *evidence.Recorder
	if opts.EvidenceDir != "" {
		recorder, err = evidence.NewRecorder(opts.EvidenceDir, opts.RunId)
		if err != nil {
			return nil, err
		}
	}

	return &Session{
		http:     client,
		baseUrl:  baseUrl,
		pace:     opts.Pace,
		evidence: recorder,
	}, nil
}

// loadPage fetches a url and makes it the session's current page.
func (s *Session) loadPage(ctx context.Context, target string) (*resty.Response, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, err
	}
	return res, s.setPage(res)
}

func (s *Session) setPage(res *resty.Response) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return err
	}
	s.pageDoc = doc
	s.pageRaw = res.Body()
	s.pageUrl = res.RawResponse.Request.URL
	return nil
}

// resolve turns an href from the current page into an absolute url.
func (s *Session) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	base := s.pageUrl
	if base == nil {
		base = s.baseUrl
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *Session) capture(label string) string {
	if s.evidence == nil {
		return ""
	}
	return s.evidence.Capture(label, s.pageRaw)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classify(err error, outcome SubmissionOutcome) SubmissionOutcome {
	outcome.FailureReason = err.Error()
	switch {
	case errors.Is(err, ErrNavigationTimeout) || isTimeout(err):
		outcome.Status = StatusTimeout
	case errors.Is(err, ErrFormNotFound):
		outcome.Status = StatusFormNotFound
	default:
		outcome.Status = StatusUnknownError
	}
	return outcome
}

// IsValidation reports whether an error came from input validation
// rather than portal interaction. Validation failures are terminal
// and never retried.
func IsValidation(err error) bool {
	var verr *sanitize.ValidationError
	return errors.As(err, &verr)
}
