/**
 * @description
 * This package provides a client for the Intouch payment aggregator API. It
 * encapsulates authenticated HTTP requests for initiating collections (mobile
 * money / card deposits) and payouts (withdrawals), and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package intouchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the Intouch API.
type Client struct {
	BaseURL    string
	APIKey     string
	MerchantID string
	HTTPClient *http.Client
}

// NewClient creates a new Intouch API client.
func NewClient(baseURL, apiKey, merchantID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MerchantID: merchantID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentParams carries one payment initiation request. Amount is a decimal
// string in XOF; Direction selects collection (money in) or payout (money out).
type PaymentParams struct {
	ReferenceNumber string
	Amount          string
	PaymentMethod   string
	Direction       string // "collection" or "payout"
	CustomerID      string
}

type paymentRequest struct {
	MerchantID      string `json:"merchant_id"`
	ReferenceNumber string `json:"partner_transaction_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	ServiceCode     string `json:"service_code"`
	CustomerID      string `json:"customer_id,omitempty"`
}

// PaymentResponse is the expected response from Intouch's payment endpoints.
type PaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// ErrorResponse represents an error returned by the Intouch API.
type ErrorResponse struct {
	StatusCode int
	Code       string `json:"error_code"`
	Message    string `json:"error_message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("intouch api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("intouch api error: http %d", e.StatusCode)
}

// Service codes per rail and direction, from the Intouch partner catalogue.
var serviceCodes = map[string]map[string]string{
	"collection": {
		"wave":          "WAVE_SN_CASHIN",
		"orange_money":  "OM_SN_CASHIN",
		"free_money":    "FM_SN_CASHIN",
		"card":          "CARD_SN_PAY",
		"bank_transfer": "BANK_SN_TRANSFER",
	},
	"payout": {
		"wave":          "WAVE_SN_CASHOUT",
		"orange_money":  "OM_SN_CASHOUT",
		"free_money":    "FM_SN_CASHOUT",
		"card":          "CARD_SN_REFUND",
		"bank_transfer": "BANK_SN_PAYOUT",
	},
}

// InitiatePayment forwards a payment request to Intouch and returns the
// provider's transaction id. The definitive outcome arrives later via webhook.
func (c *Client) InitiatePayment(ctx context.Context, params PaymentParams) (*PaymentResponse, error) {
	codes, ok := serviceCodes[params.Direction]
	if !ok {
		return nil, fmt.Errorf("unknown payment direction %q", params.Direction)
	}
	serviceCode, ok := codes[params.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("no service code for payment method %q", params.PaymentMethod)
	}

	reqPayload := paymentRequest{
		MerchantID:      c.MerchantID,
		ReferenceNumber: params.ReferenceNumber,
		Amount:          params.Amount,
		Currency:        "XOF",
		ServiceCode:     serviceCode,
		CustomerID:      params.CustomerID,
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/transactions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, apiErr
	}

	var payment PaymentResponse
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, fmt.Errorf("decode intouch response: %w", err)
	}
	if payment.TransactionID == "" {
		return nil, fmt.Errorf("intouch response missing transaction id")
	}
	return &payment, nil
}
