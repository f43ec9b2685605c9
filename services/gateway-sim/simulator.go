package main

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
)

type simConfig struct {
	FailRate      float64 // share of push requests answered with a 500
	CancelRate    float64 // share of accepted pushes the "payer" cancels
	CallbackDelay time.Duration
	Latency       bool // sleep 50-350ms per push, like a real upstream
}

type simPush struct {
	MerchantRequestID string
	CheckoutRequestID string
	Amount            int64
	Phone             string
	CallbackURL       string
	done              bool
	resultCode        int
	resultDesc        string
}

type simulator struct {
	cfg    simConfig
	logger *zap.Logger
	client *http.Client

	mu     sync.Mutex
	rnd    *rand.Rand
	pushes map[string]*simPush
	wg     sync.WaitGroup
}

func newSimulator(cfg simConfig, logger *zap.Logger) *simulator {
	return &simulator{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		pushes: map[string]*simPush{},
	}
}

func (s *simulator) routes(r *mux.Router) {
	r.HandleFunc("/oauth/v1/generate", s.token).Methods(http.MethodGet)
	r.HandleFunc("/mpesa/stkpush/v1/processrequest", s.push).Methods(http.MethodPost)
	r.HandleFunc("/mpesa/stkpushquery/v1/query", s.query).Methods(http.MethodPost)
}

func (s *simulator) wait() { s.wg.Wait() }

func (s *simulator) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *simulator) token(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok || r.URL.Query().Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"errorCode":    "400.008.01",
			"errorMessage": "Invalid Authentication passed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": strings.ReplaceAll(uuid.NewString(), "-", ""),
		"expires_in":   "3599",
	})
}

type pushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	Amount            int64  `json:"Amount"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
}

func (s *simulator) push(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errorCode": "404.001.03", "errorMessage": "Invalid Access Token"})
		return
	}
	var in pushBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Amount <= 0 || in.PhoneNumber == "" || in.CallBackURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorCode": "400.002.02", "errorMessage": "Bad Request - Invalid request body"})
		return
	}

	if s.cfg.Latency {
		time.Sleep(time.Duration(50+s.roll()*300) * time.Millisecond)
	}
	if s.roll() < s.cfg.FailRate {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"errorCode": "500.003.02", "errorMessage": "System is busy. Please try again in few minutes."})
		return
	}

	p := &simPush{
		MerchantRequestID: strconv.FormatInt(time.Now().UnixNano()%100000, 10) + "-" + uuid.NewString()[:8],
		CheckoutRequestID: "ws_CO_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:            in.Amount,
		Phone:             in.PhoneNumber,
		CallbackURL:       in.CallBackURL,
	}
	s.mu.Lock()
	s.pushes[p.CheckoutRequestID] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go s.callBack(p)

	writeJSON(w, http.StatusOK, mpesa.PushAck{
		MerchantRequestID:   p.MerchantRequestID,
		CheckoutRequestID:   p.CheckoutRequestID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	})
}

// callBack plays the payer: after the delay it either pays or cancels and
// posts the outcome to the merchant's callback URL.
func (s *simulator) callBack(p *simPush) {
	defer s.wg.Done()
	time.Sleep(s.cfg.CallbackDelay)

	code, desc := 0, "The service request is processed successfully."
	if s.roll() < s.cfg.CancelRate {
		code, desc = 1032, "Request cancelled by user"
	}

	s.mu.Lock()
	p.done, p.resultCode, p.resultDesc = true, code, desc
	s.mu.Unlock()

	payload, _ := json.Marshal(callbackPayload(p, code, desc, time.Now()))
	resp, err := s.client.Post(p.CallbackURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("callback delivery failed", zap.Error(err), zap.String("checkout_request_id", p.CheckoutRequestID))
		return
	}
	defer resp.Body.Close()
	s.logger.Info("callback delivered",
		zap.String("checkout_request_id", p.CheckoutRequestID),
		zap.Int("result_code", code),
		zap.Int("status", resp.StatusCode))
}

func callbackPayload(p *simPush, code int, desc string, at time.Time) map[string]any {
	cb := map[string]any{
		"MerchantRequestID": p.MerchantRequestID,
		"CheckoutRequestID": p.CheckoutRequestID,
		"ResultCode":        code,
		"ResultDesc":        desc,
	}
	if code == 0 {
		ts, _ := strconv.ParseInt(mpesa.Timestamp(at), 10, 64)
		phone, _ := strconv.ParseInt(p.Phone, 10, 64)
		cb["CallbackMetadata"] = map[string]any{
			"Item": []map[string]any{
				{"Name": "Amount", "Value": p.Amount},
				{"Name": "MpesaReceiptNumber", "Value": receiptNumber(p.CheckoutRequestID)},
				{"Name": "Balance"},
				{"Name": "TransactionDate", "Value": ts},
				{"Name": "PhoneNumber", "Value": phone},
			},
		}
	}
	return map[string]any{"Body": map[string]any{"stkCallback": cb}}
}

func receiptNumber(checkoutID string) string {
	id := strings.ToUpper(strings.TrimPrefix(checkoutID, "ws_CO_"))
	if len(id) > 10 {
		id = id[:10]
	}
	return id
}

func (s *simulator) query(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	p, ok := s.pushes[in.CheckoutRequestID]
	var snapshot simPush
	if ok {
		snapshot = *p
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorCode": "400.002.02", "errorMessage": "Bad Request - Invalid CheckoutRequestID"})
	case !snapshot.done:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"})
	default:
		writeJSON(w, http.StatusOK, mpesa.QueryResult{
			ResponseCode:        "0",
			ResponseDescription: "The service request has been accepted successsfully",
			MerchantRequestID:   snapshot.MerchantRequestID,
			CheckoutRequestID:   snapshot.CheckoutRequestID,
			ResultCode:          strconv.Itoa(snapshot.resultCode),
			ResultDesc:          snapshot.resultDesc,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
