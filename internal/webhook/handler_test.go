package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"opomelilla_bot/internal/update"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusEndpoint(t *testing.T) {
	engine, _, _ := newTestEngine("", &stubRouter{})

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, Path, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" || body["message"] != statusMessage || body["timestamp"] != "2025-06-01T09:00:00Z" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReceiveRoutesUpdate(t *testing.T) {
	processed := true
	router := &stubRouter{resp: Response{OK: true, Type: "payment", PaymentProcessed: &processed}}
	engine, _, _ := newTestEngine("s3cret", router)

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"update_id":5,"message":{"message_id":1,"chat":{"id":1},"from":{"id":2,"first_name":"Ana"},"text":"/help"}}`))
	req.Header.Set(SecretHeader, "s3cret")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"ok":true,"type":"payment","paymentProcessed":true}` {
		t.Fatalf("unexpected body %s", body)
	}
	if rr.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected request id header, got %q", rr.Header().Get(RequestIDHeader))
	}
	if len(router.inbound) != 1 || router.inbound[0].UpdateID != 5 || router.inbound[0].Message.Text != "/help" {
		t.Fatalf("unexpected routed updates %+v", router.inbound)
	}
}

func TestReceiveRejectsWrongSecret(t *testing.T) {
	router := &stubRouter{}
	engine, _, _ := newTestEngine("s3cret", router)

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"update_id":5}`))
	req.Header.Set(SecretHeader, "guess")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected HTTP 401, got %d", rr.Code)
	}
	if len(router.inbound) != 0 {
		t.Fatalf("expected update not to be routed")
	}
}

func TestReceiveRejectsInvalidJSON(t *testing.T) {
	router := &stubRouter{}
	engine, _, _ := newTestEngine("", router)

	for _, payload := range []string{`{not json`, ``} {
		rr := httptest.NewRecorder()
		engine.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, Path, strings.NewReader(payload)))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: expected HTTP 400, got %d", payload, rr.Code)
		}
		if body := strings.TrimSpace(rr.Body.String()); body != `{"error":"invalid update","ok":false}` {
			t.Fatalf("payload %q: unexpected body %s", payload, body)
		}
	}
	if len(router.inbound) != 0 {
		t.Fatalf("expected nothing routed")
	}
}

func TestReceiveRouteErrorIsGeneric500(t *testing.T) {
	engine, hook, _ := newTestEngine("", &stubRouter{err: errors.New("mongo: connection refused")})

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"update_id":1}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected HTTP 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "mongo") {
		t.Fatalf("expected generic error body, got %s", rr.Body.String())
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "webhook_route_failed" {
		t.Fatalf("expected route failure log, got %+v", entry)
	}
}

func TestReceiveRecoversFromPanics(t *testing.T) {
	engine, hook, _ := newTestEngine("", &stubRouter{panics: true})

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, Path, strings.NewReader(`{"update_id":1}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected HTTP 500, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"error":"internal server error","ok":false}` {
		t.Fatalf("unexpected body %s", body)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "webhook_panic" {
		t.Fatalf("expected panic log, got %+v", entry)
	}
}

func newTestEngine(secret string, router UpdateRouter) (*gin.Engine, *logtest.Hook, *Handler) {
	logger, hook := logtest.NewNullLogger()
	h := NewHandler(router, secret, logrus.NewEntry(logger))
	h.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	ids := 0
	h.newID = func() string {
		ids++
		return fmt.Sprintf("req-%d", ids)
	}

	engine := gin.New()
	h.Register(engine)
	return engine, hook, h
}

type stubRouter struct {
	inbound []update.Inbound
	resp    Response
	err     error
	panics  bool
}

func (s *stubRouter) Route(_ context.Context, in update.Inbound) (Response, error) {
	if s.panics {
		panic("boom")
	}
	s.inbound = append(s.inbound, in)
	return s.resp, s.err
}
