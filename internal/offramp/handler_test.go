package offramp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/paylink/offramp/internal/journal"
	"github.com/paylink/offramp/internal/logging"
)

func setupHandlerApp(gw *fakeGateway, waitTimeout time.Duration) (*fiber.App, *Service) {
	svc, _, _ := newTestService(gw)
	withInstantWait(svc)
	rec := journal.NewRecorder(journal.NewMemoryRepository(), []byte("k"), logging.Discard())
	h := NewHandler(svc, rec, waitTimeout)

	app := fiber.New()
	app.Post("/validate", h.Validate)
	app.Post("/provision", h.Provision)
	app.Post("/approval/await", h.AwaitApproval)
	app.Post("/onboard", h.Onboard)
	app.Post("/persona-url", h.PersonaURL)
	app.Get("/users/:account", h.FetchUser)
	app.Get("/iban/:iban/country", h.IBANCountry)
	app.Get("/chains", h.Chains)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHandlerValidateReportsAllErrors(t *testing.T) {
	app, _ := setupHandlerApp(newFakeGateway(), 0)

	resp, out := doJSON(t, app, http.MethodPost, "/validate", AccountForm{Type: AccountTypeUS})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["valid"] != false {
		t.Fatalf("expected invalid form, got %v", out)
	}
	if errs, _ := out["errors"].([]any); len(errs) != 7 {
		t.Fatalf("expected 7 field errors, got %v", out["errors"])
	}
}

func TestHandlerProvisionMapsErrors(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["create_external_account"] = statusErr{code: http.StatusBadRequest}
	app, _ := setupHandlerApp(gw, 0)

	body := map[string]any{
		"customer_id":   "cust_1",
		"full_name":     "Ada Lovelace",
		"account":       AccountForm{Type: AccountTypeIBAN, AccountNumber: testIBAN, BIC: testBIC},
		"chain_id":      "1",
		"token_address": mainnetUSDC,
	}
	resp, out := doJSON(t, app, http.MethodPost, "/provision", body)
	if resp.StatusCode != http.StatusBadGateway || out["step"] != string(StepCreateExternalAccount) {
		t.Fatalf("expected 502 at external account step, got %d %v", resp.StatusCode, out)
	}

	body["chain_id"] = "56"
	resp, _ = doJSON(t, app, http.MethodPost, "/provision", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unsupported chain, got %d", resp.StatusCode)
	}
}

func TestHandlerProvisionWithExistingUser(t *testing.T) {
	gw := newFakeGateway()
	app, _ := setupHandlerApp(gw, 0)

	resp, out := doJSON(t, app, http.MethodPost, "/provision", map[string]any{
		"customer_id":   "cust_1",
		"user_id":       "usr_9",
		"account":       AccountForm{Type: AccountTypeIBAN, AccountNumber: testIBAN, BIC: testBIC},
		"chain_id":      "1",
		"token_address": mainnetUSDC,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.StatusCode, out)
	}
	if gw.callCount("create_user") != 0 {
		t.Fatal("expected existing user to skip creation")
	}
	if gw.gotCreateAccount.UserID != "usr_9" {
		t.Fatalf("unexpected account input %+v", gw.gotCreateAccount)
	}
}

func TestHandlerAwaitApproval(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending, StatusUnderReview}
	app, _ := setupHandlerApp(gw, 0)

	resp, _ := doJSON(t, app, http.MethodPost, "/approval/await", map[string]any{"customer_id": "lnk_1", "track": "kyc", "status": "pending"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for under review, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/approval/await", map[string]any{"customer_id": "lnk_1", "track": "aml"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown track, got %d", resp.StatusCode)
	}
}

func TestHandlerAwaitApprovalTimesOut(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackTOS] = []ApprovalStatus{StatusPending}
	app, svc := setupHandlerApp(gw, 20*time.Millisecond)
	svc.poller.wait = sleep
	svc.poller.Interval = time.Millisecond

	resp, _ := doJSON(t, app, http.MethodPost, "/approval/await", map[string]any{"customer_id": "lnk_1", "track": "tos"})
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}
}

func TestHandlerAwaitApprovalCanceled(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending}
	app, svc := setupHandlerApp(gw, 0)
	svc.poller.wait = func(context.Context, time.Duration) error { return context.Canceled }

	resp, _ := doJSON(t, app, http.MethodPost, "/approval/await", map[string]any{"customer_id": "lnk_1", "track": "kyc"})
	if resp.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("expected 408 for canceled wait, got %d", resp.StatusCode)
	}
}

func TestHandlerOnboardReturnsStages(t *testing.T) {
	app, _ := setupHandlerApp(newOnboardGateway(), 0)

	resp, out := doJSON(t, app, http.MethodPost, "/onboard", map[string]any{
		"full_name":     "Ada Lovelace",
		"email":         "ada@example.com",
		"account":       AccountForm{Type: AccountTypeIBAN, AccountNumber: testIBAN, BIC: testBIC},
		"chain_id":      "1",
		"token_address": mainnetUSDC,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.StatusCode, out)
	}
	if stages, _ := out["stages"].([]any); len(stages) != 5 || stages[4] != string(StageSubmitting) {
		t.Fatalf("unexpected stages %v", out["stages"])
	}
}

func TestHandlerOnboardInvalidForm(t *testing.T) {
	app, _ := setupHandlerApp(newOnboardGateway(), 0)

	resp, out := doJSON(t, app, http.MethodPost, "/onboard", map[string]any{
		"full_name":     "Ada Lovelace",
		"email":         "ada@example.com",
		"account":       AccountForm{Type: AccountTypeIBAN, AccountNumber: testIBAN},
		"chain_id":      "1",
		"token_address": mainnetUSDC,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if errs, _ := out["errors"].([]any); len(errs) == 0 {
		t.Fatalf("expected field errors, got %v", out)
	}
}

func TestHandlerFetchUserNotFound(t *testing.T) {
	app, _ := setupHandlerApp(newFakeGateway(), 0)

	resp, _ := doJSON(t, app, http.MethodGet, "/users/"+testIBAN, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerIBANCountryAndChains(t *testing.T) {
	app, _ := setupHandlerApp(newFakeGateway(), 0)

	resp, out := doJSON(t, app, http.MethodGet, "/iban/"+testIBAN+"/country", nil)
	if resp.StatusCode != http.StatusOK || out["country"] != "DEU" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, out)
	}
	resp, _ = doJSON(t, app, http.MethodGet, "/iban/12345/country", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown country, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/chains", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("chains: %v", err)
	}
	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil || len(list) == 0 {
		t.Fatalf("expected chain list, got %v %v", list, err)
	}
}

func TestHandlerPersonaURL(t *testing.T) {
	app, _ := setupHandlerApp(newFakeGateway(), 0)

	resp, out := doJSON(t, app, http.MethodPost, "/persona-url", map[string]any{
		"kyc_link":     "https://bridge.withpersona.com/verify?inquiry-template-id=itmpl_1&reference-id=ref",
		"origin":       "https://app.example.com",
		"redirect_uri": "https://app.example.com/done",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if u, _ := out["url"].(string); u == "" {
		t.Fatalf("expected widget url, got %v", out)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/persona-url", map[string]any{"kyc_link": "https://example.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without template, got %d", resp.StatusCode)
	}
}

var _ History = (*journal.Recorder)(nil)
