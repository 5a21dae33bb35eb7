package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/logging"
)

type webhookApp struct {
	app      *fiber.App
	cards    *card.Service
	recorder ledger.Recorder
	cleanup  func()
}

func newWebhookApp(t *testing.T) *webhookApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cards := card.NewService(card.NewMemoryRepository())
	recorder := ledger.NewInMemory()
	logger := logging.Discard()

	validator := NewValidator(ValidatorConfig{Secret: testSecret},
		NewRedisDedupStore(cache), NewRedisRateLimiter(cache, 100), logger)
	handler := NewHandler(validator, NewRouter(cards, recorder, logger), logger)

	app := fiber.New()
	app.Post("/webhooks", handler.Receive)

	return &webhookApp{
		app:      app,
		cards:    cards,
		recorder: recorder,
		cleanup: func() {
			cache.Close()
			mr.Close()
		},
	}
}

func (w *webhookApp) seedCard(t *testing.T, status card.Status, balance int64) card.Card {
	t.Helper()
	cd := card.Card{
		ID:          "card-1",
		CompanyID:   "co-1",
		CustomerID:  "cust-1",
		WalletID:    "wallet-1",
		Currency:    "USD",
		Balance:     balance,
		Status:      status,
		Provider:    "static",
		ProviderRef: "ref-1",
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.cards.Create(context.Background(), cd); err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return cd
}

func (w *webhookApp) deliver(t *testing.T, body []byte, ts string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks", strings.NewReader(string(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, signPayload(testSecret, ts, body))

	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func TestWebhookActivatesPendingCard(t *testing.T) {
	w := newWebhookApp(t)
	defer w.cleanup()
	w.seedCard(t, card.StatusPending, 0)

	now := time.Now().Unix()
	body := eventBody("wh-1", now)

	status, payload := w.deliver(t, body, strconv.FormatInt(now, 10))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, payload)
	}
	if payload["status"] != "processed" || payload["securityChecksPassed"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}

	cd, _ := w.cards.Get(context.Background(), "card-1")
	if cd.Status != card.StatusActive {
		t.Fatalf("expected ACTIVE after card.created, got %s", cd.Status)
	}
}

func TestWebhookDuplicateProcessesOnce(t *testing.T) {
	w := newWebhookApp(t)
	defer w.cleanup()
	w.seedCard(t, card.StatusActive, 100)

	now := time.Now().Unix()
	body := []byte(fmt.Sprintf(
		`{"event":"transaction.settled","webhook_id":"wh-settle","timestamp":%d,"data":{"card_ref":"ref-1","reference":"auth-9","amount":30,"currency":"USD"}}`,
		now))
	ts := strconv.FormatInt(now, 10)

	status, payload := w.deliver(t, body, ts)
	if status != fiber.StatusOK || payload["status"] != "processed" {
		t.Fatalf("first delivery: %d %v", status, payload)
	}

	status, payload = w.deliver(t, body, ts)
	if status != fiber.StatusOK {
		t.Fatalf("duplicate delivery must still return 200, got %d", status)
	}
	if payload["status"] != "duplicate" {
		t.Fatalf("expected duplicate status, got %v", payload)
	}

	// Side effects ran exactly once.
	cd, _ := w.cards.Get(context.Background(), "card-1")
	if cd.Balance != 70 {
		t.Fatalf("settlement must debit once, balance=%d", cd.Balance)
	}
	if entries := ledger.MustEntries(w.recorder, "settlement:wh-settle"); len(entries) != 1 {
		t.Fatalf("expected one settlement entry, got %d", len(entries))
	}
}

func TestWebhookRejectsBadSignatureWithGenericReason(t *testing.T) {
	w := newWebhookApp(t)
	defer w.cleanup()
	w.seedCard(t, card.StatusPending, 0)

	now := time.Now().Unix()
	body := eventBody("wh-2", now)
	ts := strconv.FormatInt(now, 10)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks", strings.NewReader(string(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, signPayload("wrong-secret", ts, body))

	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "signature mismatch") {
		t.Fatal("response must not leak the rejection stage detail")
	}

	cd, _ := w.cards.Get(context.Background(), "card-1")
	if cd.Status != card.StatusPending {
		t.Fatalf("rejected webhook must not change state, got %s", cd.Status)
	}
}

func TestWebhookFailedRoutingIsRetryable(t *testing.T) {
	w := newWebhookApp(t)
	defer w.cleanup()
	// No card seeded: routing fails, the id is not committed.

	now := time.Now().Unix()
	body := eventBody("wh-3", now)
	ts := strconv.FormatInt(now, 10)

	status, _ := w.deliver(t, body, ts)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 on routing failure, got %d", status)
	}
}
