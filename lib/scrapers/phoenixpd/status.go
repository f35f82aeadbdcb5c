package phoenixpd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"municipalrecords-backend/lib/htmlutil"
	"municipalrecords-backend/lib/textutil"

	"go.opentelemetry.io/otel/codes"
)

type RequestStatus string

const (
	RequestReady      RequestStatus = "ready"
	RequestProcessing RequestStatus = "processing"
	RequestUnknown    RequestStatus = "unknown"
)

var statusLinkMatchers = []string{
	"check status",
	"request status",
	"track",
	"my request",
}

var readyKeywords = []string{"ready", "complete", "available for pickup", "ready for download", "fulfilled"}
var processingKeywords = []string{"processing", "in progress", "pending", "received", "under review"}

// CheckStatus looks up a previously submitted request on the portal's
// status page. The portal offers no structured lookup, so this scans
// the page text around the confirmation code for status language.
// An unlocatable code reports unknown rather than an error.
func (s *Session) CheckStatus(ctx context.Context, confirmation string) (RequestStatus, error) {
	ctx, span := tracer.Start(ctx, "phoenixpd.CheckStatus")
	defer span.End()

	if confirmation == "" {
		return RequestUnknown, fmt.Errorf("empty confirmation code")
	}

	if err := s.navigate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return RequestUnknown, err
	}
	s.capture("status_landing")

	// a dedicated status page may or may not exist on the current
	// portal revision
	if href, _, ok := firstMatch(ctx, "status page link", []probe[string]{
		{"anchor text", func() (string, bool) {
			return s.findAnchor(ctx, func(text, href string) bool {
				return textutil.MatchName(text, statusLinkMatchers)
			})
		}},
		{"a[href*='status']", func() (string, bool) {
			return s.findAnchor(ctx, func(text, href string) bool {
				return strings.Contains(strings.ToLower(href), "status")
			})
		}},
	}); ok {
		target, err := s.resolve(href)
		if err == nil {
			if _, err := s.loadPage(ctx, target); err != nil {
				span.RecordError(err)
				return RequestUnknown, err
			}
			if err := s.pace.PageLoad.Sleep(ctx); err != nil {
				return RequestUnknown, err
			}
		}
	}
	s.capture("status_page")

	pageText := strings.ToLower(htmlutil.CleanText(s.pageDoc.Find("body").Text()))
	idx := strings.Index(pageText, strings.ToLower(confirmation))
	if idx < 0 {
		slog.DebugContext(ctx, "confirmation code not found on status page",
			"confirmation", confirmation)
		return RequestUnknown, nil
	}

	// inspect text near the code, not the whole page, so one request's
	// status does not bleed into another's
	window := statusWindow(pageText, idx, len(confirmation))
	switch {
	case textutil.MatchName(window, readyKeywords):
		return RequestReady, nil
	case textutil.MatchName(window, processingKeywords):
		return RequestProcessing, nil
	default:
		return RequestUnknown, nil
	}
}

const statusWindowRadius = 200

func statusWindow(text string, idx, codeLen int) string {
	start := idx - statusWindowRadius
	if start < 0 {
		start = 0
	}
	end := idx + codeLen + statusWindowRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
