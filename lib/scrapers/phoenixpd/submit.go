package phoenixpd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"municipalrecords-backend/lib/htmlutil"
	"municipalrecords-backend/lib/textutil"
	"municipalrecords-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

const navRetryCooldown = time.Second * 5

// portalForm is the engine's model of the request form: the action
// endpoint plus every name/value pair accumulated so far, seeded from
// the form's own hidden and default values.
type portalForm struct {
	sel    *goquery.Selection
	action string
	method string
	values url.Values
}

// Submit runs the whole submission pipeline for one request. It never
// returns an error: every failure mode is classified into the
// outcome's status so the caller can persist it as-is.
func (s *Session) Submit(ctx context.Context, req SubmissionRequest) SubmissionOutcome {
	ctx, span := tracer.Start(ctx, "phoenixpd.Submit")
	defer span.End()

	var outcome SubmissionOutcome
	record := func(label string) {
		if path := s.capture(label); path != "" {
			outcome.Evidence = append(outcome.Evidence, path)
		}
	}

	prep, err := prepare(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "input validation failed")
		outcome.Status = StatusValidationRejected
		outcome.FailureReason = err.Error()
		return outcome
	}

	if err := s.navigate(ctx); err != nil {
		record("navigation_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return classify(err, outcome)
	}
	record("landing_page")

	form, err := s.locateForm(ctx)
	if err != nil {
		record("form_not_found")
		span.RecordError(err)
		span.SetStatus(codes.Error, "form not found")
		return classify(err, outcome)
	}
	record("request_form_page")

	if err := s.selectCategory(ctx, form, prep.config); err != nil {
		record("category_not_selectable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "category not selectable")
		return classify(err, outcome)
	}
	record(fmt.Sprintf("selected_%s", req.ReportType))

	if err := s.fillFields(ctx, form, prep); err != nil {
		record("form_incomplete")
		span.RecordError(err)
		span.SetStatus(codes.Error, "form fill failed")
		return classify(err, outcome)
	}
	record(fmt.Sprintf("form_filled_%s", req.ReportType))

	if err := s.submitForm(ctx, form, record); err != nil {
		record("submit_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return classify(err, outcome)
	}
	record("confirmation_page")

	s.extractConfirmation(ctx, &outcome)
	outcome.Status = StatusSubmitted
	return outcome
}

// navigate loads the portal landing page. The portal drops requests
// under load so a couple of immediate retries with a cooldown are
// worth more than failing the whole attempt.
func (s *Session) navigate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "phoenixpd.navigate")
	defer span.End()

	const maxAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "retrying portal navigation",
				"attempt", attempt+1, "err", lastErr)
			t := time.NewTimer(navRetryCooldown)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		res, err := s.loadPage(ctx, "")
		if err != nil {
			lastErr = err
			continue
		}
		if res.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("%w: landing page returned %d", ErrNavigationTimeout, res.StatusCode())
			continue
		}
		title := strings.ToLower(s.pageDoc.Find("title").Text())
		if !strings.Contains(title, "phoenix") && !strings.Contains(title, "public safety") {
			lastErr = fmt.Errorf("%w: unexpected page title %q", ErrNavigationTimeout, title)
			continue
		}

		if err := s.pace.PageLoad.Sleep(ctx); err != nil {
			return err
		}
		return nil
	}

	if lastErr == nil {
		lastErr = ErrNavigationTimeout
	}
	if !isTimeout(lastErr) {
		lastErr = fmt.Errorf("%w: %v", ErrNavigationTimeout, lastErr)
	}
	return lastErr
}

var formLinkMatchers = []string{
	"records request",
	"public records",
	"request report",
	"request a report",
	"police report",
}

// locateForm finds the records request form, following a link off the
// landing page when the form is not hosted there directly.
func (s *Session) locateForm(ctx context.Context) (*portalForm, error) {
	ctx, span := tracer.Start(ctx, "phoenixpd.locateForm")
	defer span.End()

	href, probeName, ok := firstMatch(ctx, "request form link", []probe[string]{
		{"anchor text", func() (string, bool) {
			return s.findAnchor(ctx, func(text, href string) bool {
				return textutil.MatchName(text, formLinkMatchers)
			})
		}},
		{"a[href*='records']", func() (string, bool) {
			return s.findAnchor(ctx, func(text, href string) bool {
				return strings.Contains(strings.ToLower(href), "records")
			})
		}},
		{"a[href*='request']", func() (string, bool) {
			return s.findAnchor(ctx, func(text, href string) bool {
				return strings.Contains(strings.ToLower(href), "request")
			})
		}},
	})
	if ok {
		slog.DebugContext(ctx, "following request form link", "probe", probeName, "href", href)
		target, err := s.resolve(href)
		if err != nil {
			return nil, fmt.Errorf("%w: bad link href %q", ErrFormNotFound, href)
		}
		if err := s.pace.Action.Sleep(ctx); err != nil {
			return nil, err
		}
		if _, err := s.loadPage(ctx, target); err != nil {
			return nil, fmt.Errorf("%w: following %q: %v", ErrFormNotFound, target, err)
		}
		if err := s.pace.PageLoad.Sleep(ctx); err != nil {
			return nil, err
		}
	}

	// weak fallback: the form may live on the current page already
	form := s.richestForm()
	if form == nil {
		return nil, ErrFormNotFound
	}
	return form, nil
}

func (s *Session) findAnchor(ctx context.Context, match func(text, href string) bool) (string, bool) {
	for _, a := range htmlutil.GetAnchors(ctx, s.pageDoc.Find("a[href]")) {
		if a.Href == "" || strings.HasPrefix(a.Href, "#") || strings.HasPrefix(strings.ToLower(a.Href), "javascript:") {
			continue
		}
		if match(a.Name, a.Href) {
			return a.Href, true
		}
	}
	return "", false
}

// richestForm picks the form carrying the most controls, which on
// every observed revision of the portal page is the request form and
// not the site search box.
func (s *Session) richestForm() *portalForm {
	var best *goquery.Selection
	bestCount := 0
	s.pageDoc.Find("form").Each(func(_ int, f *goquery.Selection) {
		count := f.Find("input, select, textarea").Length()
		if count > bestCount {
			best = f
			bestCount = count
		}
	})
	if best == nil {
		return nil
	}
	return s.parseForm(best)
}

// parseForm seeds the value set with the form's own defaults so
// hidden anti-forgery tokens survive the round trip.
func (s *Session) parseForm(sel *goquery.Selection) *portalForm {
	form := &portalForm{
		sel:    sel,
		values: url.Values{},
		method: strings.ToUpper(sel.AttrOr("method", "POST")),
	}
	form.action = sel.AttrOr("action", "")

	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "hidden":
			form.values.Set(name, in.AttrOr("value", ""))
		case "radio", "checkbox":
			if _, checked := in.Attr("checked"); checked {
				form.values.Set(name, in.AttrOr("value", "on"))
			}
		case "submit", "button", "image", "file":
		default:
			if v := in.AttrOr("value", ""); v != "" {
				form.values.Set(name, v)
			}
		}
	})
	sel.Find("select[name]").Each(func(_ int, sl *goquery.Selection) {
		opt := sl.Find("option[selected]").First()
		if opt.Length() > 0 {
			form.values.Set(sl.AttrOr("name", ""), opt.AttrOr("value", htmlutil.CleanText(opt.Text())))
		}
	})
	sel.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		if v := htmlutil.CleanText(ta.Text()); v != "" {
			form.values.Set(ta.AttrOr("name", ""), v)
		}
	})
	return form
}

// minimum similarity for the fuzzy category fallback
const categoryFuzzyThreshold = 0.85

func (s *Session) selectCategory(ctx context.Context, form *portalForm, config ReportConfig) error {
	ctx, span := tracer.Start(ctx, "phoenixpd.selectCategory")
	defer span.End()

	type selection struct{ name, value string }

	pick, probeName, ok := firstMatch(ctx, "report category", []probe[selection]{
		{"radio value", func() (selection, bool) {
			in := form.sel.Find(fmt.Sprintf("input[type='radio'][value*='%s']", config.FormValue)).First()
			if in.Length() == 0 {
				return selection{}, false
			}
			return selection{in.AttrOr("name", ""), in.AttrOr("value", "")}, true
		}},
		{"checkbox value", func() (selection, bool) {
			in := form.sel.Find(fmt.Sprintf("input[type='checkbox'][value*='%s']", config.FormValue)).First()
			if in.Length() == 0 {
				return selection{}, false
			}
			return selection{in.AttrOr("name", ""), in.AttrOr("value", "on")}, true
		}},
		{"label text", func() (selection, bool) {
			return s.categoryFromLabel(form, func(text string) bool {
				return textutil.MatchName(text, []string{config.DisplayName})
			})
		}},
		{"option text", func() (selection, bool) {
			return categoryFromOption(form, func(text string) bool {
				return textutil.MatchName(text, []string{config.DisplayName})
			})
		}},
		{"fuzzy label", func() (selection, bool) {
			return s.categoryFromLabel(form, func(text string) bool {
				return matchr.JaroWinkler(strings.ToLower(text), strings.ToLower(config.DisplayName), false) >= categoryFuzzyThreshold
			})
		}},
		{"fuzzy option", func() (selection, bool) {
			return categoryFromOption(form, func(text string) bool {
				return matchr.JaroWinkler(strings.ToLower(text), strings.ToLower(config.DisplayName), false) >= categoryFuzzyThreshold
			})
		}},
	})
	if !ok {
		return fmt.Errorf("%w: %s", ErrCategoryNotSelectable, config.DisplayName)
	}
	if pick.name == "" {
		return fmt.Errorf("%w: matched control has no name", ErrCategoryNotSelectable)
	}

	slog.DebugContext(ctx, "selected report category",
		"category", config.DisplayName, "probe", probeName, "control", pick.name)
	form.values.Set(pick.name, pick.value)
	return s.pace.Action.Sleep(ctx)
}

// categoryFromLabel resolves a matching label to the input it labels,
// by for= attribute or nesting.
func (s *Session) categoryFromLabel(form *portalForm, match func(string) bool) (struct{ name, value string }, bool) {
	type selection = struct{ name, value string }
	var out selection
	found := false
	form.sel.Find("label").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		if !match(htmlutil.CleanText(label.Text())) {
			return true
		}
		in := label.Find("input").First()
		if in.Length() == 0 {
			if id, ok := label.Attr("for"); ok && id != "" {
				in = form.sel.Find(fmt.Sprintf("input[id='%s']", id)).First()
			}
		}
		if in.Length() == 0 {
			return true
		}
		out = selection{in.AttrOr("name", ""), in.AttrOr("value", "on")}
		found = true
		return false
	})
	return out, found
}

func categoryFromOption(form *portalForm, match func(string) bool) (struct{ name, value string }, bool) {
	type selection = struct{ name, value string }
	var out selection
	found := false
	form.sel.Find("select[name]").EachWithBreak(func(_ int, sl *goquery.Selection) bool {
		sl.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
			text := htmlutil.CleanText(opt.Text())
			if !match(text) {
				return true
			}
			out = selection{sl.AttrOr("name", ""), opt.AttrOr("value", text)}
			found = true
			return false
		})
		return !found
	})
	return out, found
}

// the portal renames its inputs between revisions, so each logical
// field carries an ordered list of shapes it has been seen as
var fieldSelectors = map[Field][]string{
	FieldCaseNumber: {
		"input[name*='case']",
		"input[name*='report']",
		"input[name*='number']",
		"input[id*='case']",
		"input[placeholder*='case']",
		"input[placeholder*='report']",
	},
	FieldFirstName: {
		"input[name*='first']",
		"input[name*='fname']",
		"input[id*='first']",
		"input[placeholder*='first']",
	},
	FieldLastName: {
		"input[name*='last']",
		"input[name*='lname']",
		"input[id*='last']",
		"input[placeholder*='last']",
	},
	FieldEmail: {
		"input[type='email']",
		"input[name*='email']",
		"input[id*='email']",
		"input[placeholder*='email']",
	},
	FieldPhone: {
		"input[type='tel']",
		"input[name*='phone']",
		"input[id*='phone']",
		"input[placeholder*='phone']",
	},
	FieldAddress: {
		"input[name*='address']",
		"input[id*='address']",
		"input[placeholder*='address']",
		"textarea[name*='address']",
	},
	FieldDate: {
		"input[type='date']",
		"input[name*='date']",
		"input[id*='date']",
		"input[placeholder*='date']",
	},
	FieldOfficerBadge: {
		"input[name*='officer']",
		"input[name*='badge']",
		"input[id*='officer']",
		"input[placeholder*='officer']",
	},
}

// fillFields types every prepared value into the first matching input
// for its logical field. Fewer than two filled fields, or a missing
// case number where the category requires one, aborts before submit.
func (s *Session) fillFields(ctx context.Context, form *portalForm, prep prepared) error {
	ctx, span := tracer.Start(ctx, "phoenixpd.fillFields")
	defer span.End()

	filled := 0
	caseNumberFilled := false

	for _, field := range prep.config.Fields {
		value := prep.values[field]
		if value == "" {
			continue
		}

		name, probeName, ok := firstMatch(ctx, string(field), inputProbes(form, fieldSelectors[field]))
		if !ok {
			slog.WarnContext(ctx, "no input matched form field", "field", field)
			continue
		}

		if err := s.pace.Action.Sleep(ctx); err != nil {
			return err
		}
		typed, err := s.typeValue(ctx, value)
		if err != nil {
			return err
		}
		form.values.Set(name, typed)
		filled++
		if field == FieldCaseNumber {
			caseNumberFilled = true
		}
		slog.DebugContext(ctx, "filled form field", "field", field, "probe", probeName)
	}

	if filled < 2 {
		return fmt.Errorf("%w: filled %d of %d fields", ErrInsufficientFields, filled, len(prep.config.Fields))
	}
	if prep.config.NeedsCaseNumber && !caseNumberFilled {
		return fmt.Errorf("%w: case number input not found", ErrInsufficientFields)
	}
	return nil
}

func inputProbes(form *portalForm, selectors []string) []probe[string] {
	probes := make([]probe[string], 0, len(selectors))
	for _, selector := range selectors {
		selector := selector
		probes = append(probes, probe[string]{selector, func() (string, bool) {
			in := form.sel.Find(selector).First()
			if in.Length() == 0 {
				return "", false
			}
			name := in.AttrOr("name", "")
			return name, name != ""
		}})
	}
	return probes
}

// typeValue simulates keying a value in one character at a time.
func (s *Session) typeValue(ctx context.Context, value string) (string, error) {
	var b strings.Builder
	for _, r := range value {
		if err := s.pace.Keystroke.Sleep(ctx); err != nil {
			return "", err
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

var submitButtonMatchers = []string{"submit", "send", "request", "continue"}

func (s *Session) submitForm(ctx context.Context, form *portalForm, record func(string)) error {
	ctx, span := tracer.Start(ctx, "phoenixpd.submitForm")
	defer span.End()

	type control struct{ name, value string }

	pick, probeName, ok := firstMatch(ctx, "submit control", []probe[control]{
		{"button[type='submit']", func() (control, bool) {
			b := form.sel.Find("button[type='submit']").First()
			if b.Length() == 0 {
				return control{}, false
			}
			return control{b.AttrOr("name", ""), b.AttrOr("value", "")}, true
		}},
		{"input[type='submit']", func() (control, bool) {
			in := form.sel.Find("input[type='submit']").First()
			if in.Length() == 0 {
				return control{}, false
			}
			return control{in.AttrOr("name", ""), in.AttrOr("value", "")}, true
		}},
		{"button text", func() (control, bool) {
			var out control
			found := false
			form.sel.Find("button").EachWithBreak(func(_ int, b *goquery.Selection) bool {
				if !textutil.MatchName(htmlutil.CleanText(b.Text()), submitButtonMatchers) {
					return true
				}
				out = control{b.AttrOr("name", ""), b.AttrOr("value", "")}
				found = true
				return false
			})
			return out, found
		}},
		{"input[value*='Submit']", func() (control, bool) {
			in := form.sel.Find("input[value*='Submit']").First()
			if in.Length() == 0 {
				return control{}, false
			}
			return control{in.AttrOr("name", ""), in.AttrOr("value", "")}, true
		}},
	})
	if !ok {
		return ErrSubmitControlNotFound
	}
	if pick.name != "" {
		form.values.Set(pick.name, pick.value)
	}

	record("pre_submit")
	if err := s.pace.PreSubmit.Sleep(ctx); err != nil {
		return err
	}

	action, err := s.resolve(form.action)
	if err != nil {
		return fmt.Errorf("bad form action %q: %w", form.action, err)
	}
	slog.DebugContext(ctx, "submitting request form",
		"probe", probeName, "action", action, "method", form.method)

	var res *resty.Response
	if form.method == http.MethodGet {
		res, err = s.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(form.values).
			Get(action)
	} else {
		res, err = s.http.R().
			SetContext(ctx).
			SetFormDataFromValues(form.values).
			Post(action)
	}
	if err != nil {
		return err
	}

	if err := s.setPage(res); err != nil {
		return err
	}
	return s.pace.PageLoad.Sleep(ctx)
}

var confirmationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Confirmation\s*#?:?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)Reference\s*#?:?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)Request\s*ID\s*:?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)Tracking\s*#?:?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)Ticket\s*#?:?\s*([A-Z0-9][A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)Case\s*#?:?\s*([A-Z0-9][A-Z0-9-]+)`),
}

// extractConfirmation pulls a confirmation code out of the response
// page. The portal has shipped submissions with no visible code, so a
// missing match synthesizes a local one rather than failing an
// otherwise successful submission.
func (s *Session) extractConfirmation(ctx context.Context, outcome *SubmissionOutcome) {
	ctx, span := tracer.Start(ctx, "phoenixpd.extractConfirmation")
	defer span.End()

	pageText := htmlutil.CleanText(s.pageDoc.Find("body").Text())
	outcome.RawConfirmation = pageText

	code, probeName, ok := firstMatch(ctx, "confirmation code", confirmationProbes(pageText))
	if ok {
		slog.DebugContext(ctx, "extracted confirmation code", "probe", probeName, "code", code)
		outcome.Confirmation = code
		return
	}

	outcome.Confirmation = fmt.Sprintf("PHX-%s", timezone.Now().Format("20060102150405"))
	outcome.SyntheticConfirmation = true
	slog.WarnContext(ctx, "no confirmation pattern matched, synthesized code",
		"code", outcome.Confirmation)
}

func confirmationProbes(pageText string) []probe[string] {
	probes := make([]probe[string], 0, len(confirmationPatterns))
	for _, pattern := range confirmationPatterns {
		pattern := pattern
		probes = append(probes, probe[string]{pattern.String(), func() (string, bool) {
			m := pattern.FindStringSubmatch(pageText)
			if m == nil {
				return "", false
			}
			return strings.ToUpper(m[1]), true
		}})
	}
	return probes
}
