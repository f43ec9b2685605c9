package mpesa

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	transactionTypePayBill = "CustomerPayBillOnline"

	// Returned by the query endpoint while the payer has not answered the prompt yet.
	errorCodeStillProcessing = "500.001.1001"
)

// PushRequest is one STK push: the payer's phone gets a PIN prompt for Amount.
type PushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// PushAck is the gateway's synchronous acknowledgment of a push request.
// CheckoutRequestID correlates the later callback.
type PushAck struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// QueryResult is the gateway's view of a push it accepted earlier.
type QueryResult struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`

	// Processing is set when the gateway reports the payer has not answered yet.
	Processing bool `json:"-"`
}

// Code returns the numeric result code, or -1 when it is absent or garbled.
func (q QueryResult) Code() int {
	n, err := strconv.Atoi(strings.TrimSpace(q.ResultCode))
	if err != nil {
		return -1
	}
	return n
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   expiresIn `json:"expires_in"`
}

// expiresIn accepts both "3599" and 3599; the gateway sends a string.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*e = expiresIn(n)
	return nil
}

type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
