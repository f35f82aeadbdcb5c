package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"municipalrecords-backend/lib/sanitize"
	"municipalrecords-backend/lib/scrapers/phoenixpd"
	"municipalrecords-backend/lib/testutil"
	"municipalrecords-backend/services/requests"
	requestsdb "municipalrecords-backend/services/requests/db"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const webhookSecret = "topsecret"

func setupWebhook(t *testing.T) (requests.Service, *httptest.Server) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "cmd/records-worker",
		DbSchema: requestsdb.Schema,
	})
	t.Cleanup(cleanup)

	service := requests.NewService(setup.DB)
	mux := http.NewServeMux()
	RegisterWebhook(mux, service, webhookSecret)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return service, server
}

func postEvent(t *testing.T, server *httptest.Server, secret, body string) *http.Response {
	req, err := http.NewRequest(
		http.MethodPost,
		server.URL+"/payments/confirmed",
		bytes.NewBufferString(body),
	)
	require.NoError(t, err)
	req.Header.Set("x-webhook-secret", secret)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	return res
}

func TestWebhookConfirmsPayment(t *testing.T) {
	service, server := setupWebhook(t)
	ctx := context.Background()

	id, err := service.CreateRequest(ctx, requests.CreateRequestInput{
		ReportType: phoenixpd.ReportIncident,
		CaseNumber: "2024-001234",
		Contact:    sanitize.ContactInfo{Email: "jane@example.com"},
	})
	require.NoError(t, err)

	body := fmt.Sprintf(`{"request_id": %d, "payment_ref": "pay_1", "amount_cents": 500}`, id)
	res := postEvent(t, server, webhookSecret, body)
	require.Equal(t, http.StatusOK, res.StatusCode)

	request, err := service.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "payment_confirmed", request.Status)

	// processor retries deliver the same event again
	res = postEvent(t, server, webhookSecret, body)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// a different payment for the same request is rejected
	body = fmt.Sprintf(`{"request_id": %d, "payment_ref": "pay_2", "amount_cents": 500}`, id)
	res = postEvent(t, server, webhookSecret, body)
	require.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	_, server := setupWebhook(t)

	res := postEvent(t, server, "wrong", `{"request_id": 1, "payment_ref": "pay_1"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	_, server := setupWebhook(t)

	res := postEvent(t, server, webhookSecret, `{"request_id": 0}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}
