package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPGateway talks to a card-issuing provider over its REST API. It carries
// a fixed request timeout and never retries; a timed-out call surfaces as a
// retryable error and the saga decides what to do with it.
type HTTPGateway struct {
	name    string
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewHTTPGateway builds a gateway for one provider endpoint.
func NewHTTPGateway(name, baseURL string, tokens TokenSource, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		name:    name,
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider backing this gateway.
func (g *HTTPGateway) Name() string { return g.name }

type providerCardBody struct {
	Reference    string     `json:"reference"`
	Status       string     `json:"status"`
	Balance      int64      `json:"balance"`
	Currency     string     `json:"currency"`
	MaskedPAN    string     `json:"masked_pan"`
	PAN          string     `json:"pan,omitempty"`
	CVV          string     `json:"cvv,omitempty"`
	Terminated   bool       `json:"terminated"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

func (b providerCardBody) toCard() Card {
	return Card{
		Reference:    b.Reference,
		Status:       b.Status,
		Balance:      b.Balance,
		Currency:     b.Currency,
		MaskedPAN:    b.MaskedPAN,
		PAN:          b.PAN,
		CVV:          b.CVV,
		Terminated:   b.Terminated,
		TerminatedAt: b.TerminatedAt,
	}
}

// IssueCard creates a card at the provider.
func (g *HTTPGateway) IssueCard(ctx context.Context, spec CardSpec) (Card, error) {
	body := map[string]string{
		"customer_ref": spec.CustomerRef,
		"currency":     spec.Currency,
		"brand":        spec.Brand,
		"name_on_card": spec.NameOnCard,
	}
	var out providerCardBody
	if err := g.do(ctx, http.MethodPost, "/cards", body, &out); err != nil {
		return Card{}, err
	}
	return out.toCard(), nil
}

// Fund pushes funds onto the card.
func (g *HTTPGateway) Fund(ctx context.Context, cardRef string, amount int64) error {
	return g.do(ctx, http.MethodPost, "/cards/"+cardRef+"/fund", map[string]int64{"amount": amount}, nil)
}

// Withdraw pulls funds off the card.
func (g *HTTPGateway) Withdraw(ctx context.Context, cardRef string, amount int64) error {
	return g.do(ctx, http.MethodPost, "/cards/"+cardRef+"/withdraw", map[string]int64{"amount": amount}, nil)
}

// Freeze suspends the card at the provider.
func (g *HTTPGateway) Freeze(ctx context.Context, cardRef string) error {
	return g.do(ctx, http.MethodPut, "/cards/"+cardRef+"/freeze", nil, nil)
}

// Unfreeze reactivates the card at the provider.
func (g *HTTPGateway) Unfreeze(ctx context.Context, cardRef string) error {
	return g.do(ctx, http.MethodPut, "/cards/"+cardRef+"/unfreeze", nil, nil)
}

// Terminate closes the card and returns the balance it still carried.
func (g *HTTPGateway) Terminate(ctx context.Context, cardRef string) (int64, error) {
	var out struct {
		RemainingBalance int64 `json:"remaining_balance"`
	}
	if err := g.do(ctx, http.MethodPut, "/cards/"+cardRef+"/terminate", nil, &out); err != nil {
		return 0, err
	}
	return out.RemainingBalance, nil
}

// GetCard fetches the provider's view of the card.
func (g *HTTPGateway) GetCard(ctx context.Context, cardRef string, revealSensitive bool) (Card, error) {
	path := "/cards/" + cardRef
	if revealSensitive {
		path += "?reveal=true"
	}
	var out providerCardBody
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Card{}, err
	}
	return out.toCard(), nil
}

// ListTransactions lists card transactions inside the window.
func (g *HTTPGateway) ListTransactions(ctx context.Context, cardRef string, window DateRange) ([]Transaction, error) {
	path := fmt.Sprintf("/cards/%s/transactions?from=%d&to=%d", cardRef, window.From.Unix(), window.To.Unix())
	var out struct {
		Transactions []struct {
			Reference  string    `json:"reference"`
			Amount     int64     `json:"amount"`
			Currency   string    `json:"currency"`
			Kind       string    `json:"kind"`
			OccurredAt time.Time `json:"occurred_at"`
		} `json:"transactions"`
	}
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	txns := make([]Transaction, 0, len(out.Transactions))
	for _, t := range out.Transactions {
		txns = append(txns, Transaction{
			Reference:  t.Reference,
			Amount:     t.Amount,
			Currency:   t.Currency,
			Kind:       t.Kind,
			OccurredAt: t.OccurredAt,
		})
	}
	return txns, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.tokens != nil {
		token, err := g.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			timedOut = true
		}
		return &Error{Retryable: true, Timeout: timedOut, Message: fmt.Sprintf("%s %s: %v", method, path, err)}
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &Error{
			Retryable:  res.StatusCode >= 500,
			Message:    fmt.Sprintf("%s %s: http %d", method, path, res.StatusCode),
			RawDetails: string(raw),
		}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return &Error{Retryable: false, Message: fmt.Sprintf("%s %s: decode response: %v", method, path, err)}
		}
	}
	return nil
}
