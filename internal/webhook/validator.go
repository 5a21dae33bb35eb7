package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Stage names the validation gate that rejected a webhook.
type Stage string

const (
	StageBasic  Stage = "basic"
	StageReplay Stage = "replay"
	StageDedup  Stage = "dedup"
	StageHMAC   Stage = "hmac"
	StageRate   Stage = "rate"
)

// SecurityError reports which gate failed and why. The reason never contains
// the expected signature or any secret material.
type SecurityError struct {
	Stage  Stage
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("webhook rejected at %s: %s", e.Stage, e.Reason)
}

// ValidatorConfig tunes the gate pipeline.
type ValidatorConfig struct {
	Secret        string
	MaxAge        time.Duration // oldest acceptable timestamp, default 300s
	ClockSkew     time.Duration // future tolerance, default 60s
	ReplayGuard   time.Duration // tight per-id window, default 60s
	DedupTTL      time.Duration // full dedup window, default 1h
	AllowInsecure bool          // permit empty secret (development only)
}

func (c ValidatorConfig) withDefaults() ValidatorConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = 300 * time.Second
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = 60 * time.Second
	}
	if c.ReplayGuard <= 0 {
		c.ReplayGuard = 60 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = time.Hour
	}
	return c
}

// Outcome is the result of a fully validated webhook.
type Outcome struct {
	Event     Event
	Duplicate bool
	Insecure  bool // validated without a secret (insecure mode)
	Throttled bool // advisory rate limit exceeded
}

// Validator runs the security gate pipeline over inbound webhooks. Gates run
// in order and the first failure is terminal; a duplicate short-circuits to
// success without re-executing side effects.
type Validator struct {
	cfg     ValidatorConfig
	dedup   DedupStore
	limiter RateLimiter
	logger  *slog.Logger

	// Now is the clock used for replay checks; overridable in tests.
	Now func() time.Time
}

// NewValidator builds the validator.
func NewValidator(cfg ValidatorConfig, dedup DedupStore, limiter RateLimiter, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		cfg:     cfg.withDefaults(),
		dedup:   dedup,
		limiter: limiter,
		logger:  logger,
		Now:     time.Now,
	}
}

// Validate runs every gate over the raw request. source identifies the
// sender for rate limiting (typically the remote IP).
func (v *Validator) Validate(ctx context.Context, rawBody []byte, signature, timestampHeader, source string) (Outcome, error) {
	// Gate 1: basic validation.
	if len(rawBody) == 0 {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "empty payload"}
	}
	if timestampHeader == "" {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "missing timestamp header"}
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "timestamp is not unix seconds"}
	}
	if v.cfg.Secret != "" {
		if signature == "" {
			return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "missing signature header"}
		}
		if _, err := hex.DecodeString(signature); err != nil {
			return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "signature is not hex"}
		}
	}

	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "payload is not valid JSON"}
	}
	if event.Event == "" || event.WebhookID == "" {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "event type and webhook_id are required"}
	}
	if !recognized(event.Event) {
		return Outcome{}, &SecurityError{Stage: StageBasic, Reason: "unrecognized event type"}
	}

	// Gate 2: replay window.
	now := v.Now()
	sent := time.Unix(ts, 0)
	if sent.After(now.Add(v.cfg.ClockSkew)) {
		return Outcome{}, &SecurityError{Stage: StageReplay, Reason: "timestamp too far in the future"}
	}
	if now.Sub(sent) > v.cfg.MaxAge {
		return Outcome{}, &SecurityError{Stage: StageReplay, Reason: "timestamp outside the accepted age window"}
	}
	// Tight per-id guard: the check-and-set makes concurrent deliveries of
	// the same id mutually exclusive, independent of the full dedup window.
	// An id that already completed processing is handled by the dedup gate
	// below, so consult the processed set before rejecting.
	seen, err := v.dedup.MarkSeen(ctx, event.WebhookID, v.cfg.ReplayGuard)
	if err != nil {
		return Outcome{}, fmt.Errorf("dedup store: %w", err)
	}
	if seen {
		processed, perr := v.dedup.IsProcessed(ctx, event.WebhookID)
		if perr != nil {
			return Outcome{}, fmt.Errorf("dedup store: %w", perr)
		}
		if !processed {
			return Outcome{}, &SecurityError{Stage: StageReplay, Reason: "webhook id delivered again within the replay guard"}
		}
		v.logger.Info("duplicate webhook acknowledged", "webhook_id", event.WebhookID, "event", event.Event)
		return Outcome{Event: event, Duplicate: true}, nil
	}

	// Gate 3: deduplication. An id fully processed inside the TTL is
	// acknowledged without re-executing side effects; the remaining gates are
	// skipped.
	outcome := Outcome{Event: event}
	processed, err := v.dedup.IsProcessed(ctx, event.WebhookID)
	if err != nil {
		return Outcome{}, fmt.Errorf("dedup store: %w", err)
	}
	if processed {
		v.logger.Info("duplicate webhook acknowledged", "webhook_id", event.WebhookID, "event", event.Event)
		outcome.Duplicate = true
		return outcome, nil
	}

	// Gate 4: HMAC.
	if v.cfg.Secret == "" {
		if !v.cfg.AllowInsecure {
			return Outcome{}, &SecurityError{Stage: StageHMAC, Reason: "no webhook secret configured"}
		}
		v.logger.Warn("webhook accepted WITHOUT signature verification; insecure mode is enabled",
			"webhook_id", event.WebhookID)
		outcome.Insecure = true
	} else {
		mac := hmac.New(sha256.New, []byte(v.cfg.Secret))
		mac.Write([]byte(timestampHeader))
		mac.Write([]byte("."))
		mac.Write(rawBody)
		expected := mac.Sum(nil)
		supplied, _ := hex.DecodeString(signature)
		if !hmac.Equal(expected, supplied) {
			return Outcome{}, &SecurityError{Stage: StageHMAC, Reason: "signature mismatch"}
		}
	}

	// Gate 5: advisory rate limit.
	if v.limiter != nil {
		allowed, err := v.limiter.Allow(ctx, source)
		if err != nil {
			v.logger.Warn("webhook rate limiter unavailable", "error", err)
		}
		if !allowed {
			v.logger.Warn("webhook source over rate budget", "source", source, "webhook_id", event.WebhookID)
			outcome.Throttled = true
		}
	}

	return outcome, nil
}

// Commit records full processing of a webhook id so later deliveries inside
// the dedup TTL short-circuit. Called after the routed handler succeeds.
func (v *Validator) Commit(ctx context.Context, webhookID string) error {
	return v.dedup.MarkProcessed(ctx, webhookID, v.cfg.DedupTTL)
}
