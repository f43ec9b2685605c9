// internal/gateway/mpesa/client.go
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
	m "github.com/example/rent-payments-poc/pkg/metrics"
)

const (
	pathToken    = "/oauth/v1/generate?grant_type=client_credentials"
	pathPush     = "/mpesa/stkpush/v1/processrequest"
	pathQuery    = "/mpesa/stkpushquery/v1/query"
	tokenSkew    = 60 * time.Second
	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL           string
	ConsumerKey       string
	ConsumerSecret    string
	BusinessShortCode string
	Passkey           string
	CallbackURL       string
	Timeout           time.Duration
	BreakerFailures   uint32
	BreakerOpenFor    time.Duration
}

// Client talks to the gateway's OAuth, STK push and STK query endpoints.
// Safe for concurrent use; one token fetch is in flight at a time.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// statusError is a non-2xx answer from the gateway.
type statusError struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *statusError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{cfg: cfg, http: httpClient, logger: logger, now: time.Now}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mpesa",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// 4xx means the gateway is up and rejected this request.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return (se.Status >= 400 && se.Status < 500) || se.ErrorCode == errorCodeStillProcessing
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// AccessToken returns a cached bearer token, fetching a new one when the
// cached one is within a minute of expiry. The shared fetch is not tied to
// any one caller; a caller whose ctx ends stops waiting for it.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (any, error) {
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}
		return c.fetchToken(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return "", apperr.Wrap(apperr.CodeGatewayAuth, "token request abandoned", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+pathToken, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeGatewayAuth, "build token request", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		m.ObserveGatewayCall("token", "error", time.Since(start).Seconds())
		return "", apperr.Wrap(apperr.CodeGatewayAuth, "token request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	m.ObserveGatewayCall("token", statusLabel(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Wrap(apperr.CodeGatewayAuth, "token request rejected", decodeStatusError(resp.StatusCode, body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", apperr.Wrap(apperr.CodeGatewayAuth, "decode token response", err)
	}
	if tr.AccessToken == "" {
		return "", apperr.New(apperr.CodeGatewayAuth, "token response has no access_token")
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSkew
	if ttl > 0 {
		c.mu.Lock()
		c.token = tr.AccessToken
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()
	}
	return tr.AccessToken, nil
}

// PushPayment sends an STK push. A nil error means the gateway accepted the
// request (ResponseCode "0"); the outcome arrives later by callback.
func (c *Client) PushPayment(ctx context.Context, in PushRequest) (*PushAck, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(c.now())
	body := stkPushBody{
		BusinessShortCode: c.cfg.BusinessShortCode,
		Password:          Password(c.cfg.BusinessShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionTypePayBill,
		Amount:            in.Amount.IntPart(),
		PartyA:            in.Phone,
		PartyB:            c.cfg.BusinessShortCode,
		PhoneNumber:       in.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  in.Reference,
		TransactionDesc:   in.Description,
	}

	var ack PushAck
	if err := c.call(ctx, "stk_push", pathPush, token, body, &ack); err != nil {
		return nil, apperr.Wrap(apperr.CodeGatewayRequest, "stk push failed", err)
	}
	if ack.ResponseCode != "0" {
		return nil, apperr.New(apperr.CodeGatewayRequest,
			fmt.Sprintf("stk push rejected: %s (code %s)", ack.ResponseDescription, ack.ResponseCode))
	}
	if ack.CheckoutRequestID == "" {
		return nil, apperr.New(apperr.CodeGatewayRequest, "stk push ack has no CheckoutRequestID")
	}
	return &ack, nil
}

// QueryPushPayment asks the gateway for the state of an earlier push.
// While the payer has not answered, the result has Processing set.
func (c *Client) QueryPushPayment(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(c.now())
	body := stkQueryBody{
		BusinessShortCode: c.cfg.BusinessShortCode,
		Password:          Password(c.cfg.BusinessShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var res QueryResult
	if err := c.call(ctx, "stk_query", pathQuery, token, body, &res); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.ErrorCode == errorCodeStillProcessing {
			return &QueryResult{CheckoutRequestID: checkoutRequestID, Processing: true}, nil
		}
		return nil, apperr.Wrap(apperr.CodeGatewayRequest, "stk query failed", err)
	}
	return &res, nil
}

func (c *Client) call(ctx context.Context, op, path, token string, in, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.postJSON(ctx, op, path, token, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("gateway unavailable: %w", err)
	}
	var se *statusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return err
}

func (c *Client) postJSON(ctx context.Context, op, path, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		m.ObserveGatewayCall(op, "error", time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	m.ObserveGatewayCall(op, statusLabel(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func decodeStatusError(status int, body []byte) *statusError {
	se := &statusError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.ErrorCode != "" || eb.ErrorMessage != "") {
		se.ErrorCode = eb.ErrorCode
		se.Message = eb.ErrorMessage
		return se
	}
	se.Message = strings.TrimSpace(string(body))
	if len(se.Message) > 200 {
		se.Message = se.Message[:200]
	}
	return se
}

func statusLabel(code int) string {
	if code >= 200 && code < 300 {
		return "SUCCESS"
	}
	return "FAILED"
}
