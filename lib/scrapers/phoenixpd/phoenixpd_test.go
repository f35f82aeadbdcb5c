package phoenixpd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"municipalrecords-backend/lib/pacing"
	"municipalrecords-backend/lib/sanitize"
	"municipalrecords-backend/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Phoenix Police Department - Public Records</title></head>
<body>
<h1>Welcome</h1>
<a href="/help">Help</a>
<a href="/records/request">Records Request</a>
<a href="/records/status">Check Status</a>
</body>
</html>`

const requestFormPage = `<!DOCTYPE html>
<html>
<head><title>Phoenix Police Department - Records Request</title></head>
<body>
<form action="/records/submit" method="post">
<input type="hidden" name="csrf_token" value="tok-123"/>
<fieldset>
<label><input type="radio" name="report_category" value="incident_report"/> Incident Report</label>
<label><input type="radio" name="report_category" value="traffic_crash"/> Traffic Crash</label>
<label><input type="radio" name="report_category" value="911_recording"/> 911 Recordings</label>
</fieldset>
<input type="text" name="case_number" placeholder="Case number"/>
<input type="text" name="first_name"/>
<input type="text" name="last_name"/>
<input type="email" name="email_address"/>
<input type="tel" name="phone_number"/>
<input type="date" name="incident_date"/>
<button type="submit">Submit Request</button>
</form>
</body>
</html>`

type fakePortal struct {
	server     *httptest.Server
	hits       atomic.Int64
	submits    atomic.Int64
	submitted  atomic.Pointer[http.Request]
	submitBody atomic.Pointer[string]

	formPage         string
	confirmationPage string
	statusPage       string
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		formPage: requestFormPage,
		confirmationPage: `<html><head><title>Phoenix PD</title></head>
<body><p>Thank you, your request was received.</p>
<p>Confirmation #: REQ-2024-0042</p></body></html>`,
		statusPage: `<html><head><title>Phoenix PD</title></head>
<body><table><tr><td>REQ-2024-0042</td><td>Processing</td></tr></table></body></html>`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		fmt.Fprint(w, landingPage)
	})
	mux.HandleFunc("/records/request", func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		fmt.Fprint(w, p.formPage)
	})
	mux.HandleFunc("/records/submit", func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		p.submits.Add(1)
		require.NoError(t, r.ParseForm())
		body := r.PostForm.Encode()
		p.submitBody.Store(&body)
		p.submitted.Store(r)
		fmt.Fprint(w, p.confirmationPage)
	})
	mux.HandleFunc("/records/status", func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		fmt.Fprint(w, p.statusPage)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) session(t *testing.T) *Session {
	s, err := NewSession(SessionOptions{
		PortalUrl:   p.server.URL,
		EvidenceDir: t.TempDir(),
		RunId:       "test",
		Pace:        pacing.Instant(),
		UserAgent:   "test-agent",
		Timeout:     time.Second * 10,
	})
	require.NoError(t, err)
	return s
}

func testContact() sanitize.ContactInfo {
	return sanitize.ContactInfo{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane.doe@example.com",
		Phone:     "(602) 555-0142",
	}
}

func TestSubmitIncidentReport(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusSubmitted, outcome.Status)
	require.Equal(t, "REQ-2024-0042", outcome.Confirmation)
	require.False(t, outcome.SyntheticConfirmation)
	require.Empty(t, outcome.FailureReason)
	require.GreaterOrEqual(t, len(outcome.Evidence), 3)

	body := *portal.submitBody.Load()
	require.Contains(t, body, "csrf_token=tok-123")
	require.Contains(t, body, "report_category=incident_report")
	require.Contains(t, body, "case_number=2024-001234")
	require.Contains(t, body, "first_name=Jane")
	require.Contains(t, body, "email_address=jane.doe%40example.com")
	require.Contains(t, body, "phone_number=6025550142")
}

func TestSubmitEvidenceArtifactsOrdered(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})
	require.Equal(t, StatusSubmitted, outcome.Status)

	for _, path := range outcome.Evidence {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
	// every artifact belongs to this session's run
	for _, path := range outcome.Evidence {
		require.Contains(t, path, "test_")
	}
}

func TestSubmitSanitizesHostileInput(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	contact := testContact()
	contact.FirstName = `Jane<script>`

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234#",
		Contact:    contact,
	})
	require.Equal(t, StatusSubmitted, outcome.Status)

	body := *portal.submitBody.Load()
	require.NotContains(t, body, "%3Cscript")
	require.NotContains(t, body, "%23")
}

func TestSubmitSyntheticConfirmation(t *testing.T) {
	portal := newFakePortal(t)
	portal.confirmationPage = `<html><head><title>Phoenix PD</title></head>
<body><p>Thank you, your request was received.</p></body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusSubmitted, outcome.Status)
	require.True(t, outcome.SyntheticConfirmation)
	require.True(t, strings.HasPrefix(outcome.Confirmation, "PHX-"))
}

func TestSubmitInsufficientFieldsNeverSubmits(t *testing.T) {
	portal := newFakePortal(t)
	// a form with only one recognizable input
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<label><input type="radio" name="report_category" value="incident_report"/> Incident Report</label>
<input type="text" name="case_number"/>
<button type="submit">Submit</button>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusUnknownError, outcome.Status)
	require.Contains(t, outcome.FailureReason, "too few form fields")
	require.Equal(t, int64(0), portal.submits.Load())
}

func TestSubmit911AgeRestrictionPrePortal(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType:   Report911Recordings,
		CaseNumber:   "2024-001234",
		Contact:      testContact(),
		IncidentDate: timezone.Now().AddDate(0, 0, -365),
	})

	require.Equal(t, StatusValidationRejected, outcome.Status)
	require.Contains(t, outcome.FailureReason, "190 days")
	// the portal was never touched
	require.Equal(t, int64(0), portal.hits.Load())
}

func TestSubmitFormNotFound(t *testing.T) {
	portal := newFakePortal(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Phoenix PD</title></head>
<body><p>Maintenance in progress.</p></body></html>`)
	})
	portal.server.Config.Handler = mux
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusFormNotFound, outcome.Status)
}

func TestSubmitCategoryFromDropdown(t *testing.T) {
	portal := newFakePortal(t)
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<select name="report_category">
<option value="">-- choose --</option>
<option value="IR">Incident Report</option>
<option value="TC">Traffic Crash</option>
</select>
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="text" name="last_name"/>
<input type="email" name="email"/>
<input type="submit" value="Submit"/>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusSubmitted, outcome.Status)
	require.Contains(t, *portal.submitBody.Load(), "report_category=IR")
}

func TestSubmitCategoryFuzzyMatch(t *testing.T) {
	portal := newFakePortal(t)
	// no exact text match anywhere, fuzzy must carry it
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<label for="cat_ir">Incident Reprt</label>
<input type="radio" id="cat_ir" name="category" value="ir"/>
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="email" name="email"/>
<button type="submit">Continue</button>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusSubmitted, outcome.Status)
	require.Contains(t, *portal.submitBody.Load(), "category=ir")
}

func TestSubmitCategoryLabelLineBreak(t *testing.T) {
	portal := newFakePortal(t)
	// label text split across lines renders without its inner
	// whitespace, matching must not depend on it
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<label><input type="radio" name="report_category" value="IR"/> Incident
	Report</label>
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="email" name="email"/>
<button type="submit">Submit</button>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusSubmitted, outcome.Status)
	require.Contains(t, *portal.submitBody.Load(), "report_category=IR")
}

func TestSubmitCategoryNotSelectableRecordsEvidence(t *testing.T) {
	portal := newFakePortal(t)
	// a form with no category control of any shape
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="text" name="last_name"/>
<input type="email" name="email"/>
<button type="submit">Submit</button>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusUnknownError, outcome.Status)
	require.Equal(t, int64(0), portal.submits.Load())
	// the failing stage still leaves an artifact behind
	require.GreaterOrEqual(t, len(outcome.Evidence), 3)
	require.Contains(t, outcome.Evidence[len(outcome.Evidence)-1], "category_not_selectable")
}

func TestSubmitControlMissingRecordsEvidence(t *testing.T) {
	portal := newFakePortal(t)
	portal.formPage = `<html><head><title>Phoenix PD</title></head>
<body>
<form action="/records/submit" method="post">
<label><input type="radio" name="report_category" value="incident_report"/> Incident Report</label>
<input type="text" name="case_number"/>
<input type="text" name="first_name"/>
<input type="text" name="last_name"/>
<input type="email" name="email"/>
</form>
</body></html>`
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusUnknownError, outcome.Status)
	require.Equal(t, int64(0), portal.submits.Load())
	require.Contains(t, outcome.Evidence[len(outcome.Evidence)-1], "submit_failed")
}

func TestSubmitUnknownReportType(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	outcome := session.Submit(context.Background(), SubmissionRequest{
		ReportType: ReportType("dashcam"),
		CaseNumber: "2024-001234",
		Contact:    testContact(),
	})

	require.Equal(t, StatusValidationRejected, outcome.Status)
	require.Equal(t, int64(0), portal.hits.Load())
}

func TestCheckStatusProcessing(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	status, err := session.CheckStatus(context.Background(), "REQ-2024-0042")
	require.NoError(t, err)
	require.Equal(t, RequestProcessing, status)
}

func TestCheckStatusReady(t *testing.T) {
	portal := newFakePortal(t)
	portal.statusPage = `<html><head><title>Phoenix PD</title></head>
<body><table><tr><td>REQ-2024-0042</td><td>Ready for download</td></tr></table></body></html>`
	session := portal.session(t)

	status, err := session.CheckStatus(context.Background(), "REQ-2024-0042")
	require.NoError(t, err)
	require.Equal(t, RequestReady, status)
}

func TestCheckStatusUnknownCode(t *testing.T) {
	portal := newFakePortal(t)
	session := portal.session(t)

	status, err := session.CheckStatus(context.Background(), "REQ-9999-9999")
	require.NoError(t, err)
	require.Equal(t, RequestUnknown, status)
}

func TestPrepareValidation(t *testing.T) {
	cases := []struct {
		name  string
		req   SubmissionRequest
		field string
	}{
		{
			name:  "incident requires case number",
			req:   SubmissionRequest{ReportType: ReportIncident, Contact: testContact()},
			field: "case_number",
		},
		{
			name:  "body camera requires case or badge",
			req:   SubmissionRequest{ReportType: ReportBodyCamera, Contact: testContact()},
			field: "case_number",
		},
		{
			name:  "calls for service requires address",
			req:   SubmissionRequest{ReportType: ReportCallsForService, Contact: testContact()},
			field: "address",
		},
		{
			name: "911 requires incident date",
			req: SubmissionRequest{
				ReportType: Report911Recordings,
				CaseNumber: "2024-001234",
				Contact:    testContact(),
			},
			field: "incident_date",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := prepare(c.req)
			require.Error(t, err)
			var verr *sanitize.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, c.field, verr.Field)
		})
	}
}

func TestPrepareSanitizedValues(t *testing.T) {
	prep, err := prepare(SubmissionRequest{
		ReportType: ReportIncident,
		CaseNumber: "24-0012 34#",
		Contact: sanitize.ContactInfo{
			FirstName: " Jane ",
			LastName:  "O'Brien",
			Email:     "Jane.Doe@Example.com",
			Phone:     "1 (602) 555-0142",
		},
		IncidentDate: time.Date(2026, 8, 1, 0, 0, 0, 0, timezone.Location),
	})
	require.NoError(t, err)

	want := map[Field]string{
		FieldCaseNumber: "24-001234",
		FieldFirstName:  "Jane",
		FieldLastName:   "O'Brien",
		FieldEmail:      "jane.doe@example.com",
		FieldPhone:      "6025550142",
		FieldDate:       "08/01/2026",
	}
	if diff := cmp.Diff(want, prep.values); diff != "" {
		t.Fatalf("prepared values mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareBodyCameraBadgeOnly(t *testing.T) {
	prep, err := prepare(SubmissionRequest{
		ReportType: ReportBodyCamera,
		Contact:    testContact(),
		Extra:      map[Field]string{FieldOfficerBadge: "8421"},
	})
	require.NoError(t, err)
	require.Equal(t, "8421", prep.values[FieldOfficerBadge])
	require.NotContains(t, prep.values, FieldCaseNumber)
}
