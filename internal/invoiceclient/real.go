package invoiceclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

// Real talks to an actual BTCPay Server (or compatible) REST API using a
// bearer-token API key, mirroring settlement_bridge.py's RealBtcpayClient.
type Real struct {
	APIBase string
	APIKey  string
	StoreID string
	Timeout time.Duration

	httpClient *http.Client
}

// NewReal returns a Real client. A zero Timeout defaults to 10 seconds,
// matching the reference implementation's default.
func NewReal(apiBase, apiKey, storeID string, timeout time.Duration) *Real {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Real{
		APIBase:    strings.TrimRight(apiBase, "/"),
		APIKey:     apiKey,
		StoreID:    storeID,
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *Real) request(method, path string, body interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Errorf("invoiceclient: encoding request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, r.APIBase+path, reader)
	if err != nil {
		return nil, errors.Errorf("invoiceclient: building request: %v", err)
	}
	req.Header.Set("Authorization", "token "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Errorf("invoiceclient: btcpay_url_error: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("invoiceclient: reading response: %v", err)
	}

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("invoiceclient: btcpay_http_error: %d %s: %s",
			resp.StatusCode, resp.Status, string(raw))
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Errorf("invoiceclient: decoding response: %v", err)
	}
	return out, nil
}

// CreateInvoice posts a new invoice to BTCPay's invoices endpoint.
func (r *Real) CreateInvoice(usdAmount float64, metadata map[string]string) (CreatedInvoice, error) {
	payload := map[string]interface{}{
		"amount":   usdAmount,
		"currency": "USD",
		"metadata": metadata,
	}

	data, err := r.request("POST", fmt.Sprintf("/api/v1/stores/%s/invoices", r.StoreID), payload)
	if err != nil {
		return CreatedInvoice{}, err
	}

	invoiceID, _ := firstString(data, "id", "invoiceId")
	if invoiceID == "" {
		return CreatedInvoice{}, errors.Errorf("invoiceclient: btcpay_missing_invoice_id")
	}
	invoiceURL, _ := firstString(data, "checkoutLink", "url")
	if invoiceURL == "" {
		invoiceURL = fmt.Sprintf("%s/i/%s", r.APIBase, invoiceID)
	}
	status, _ := firstString(data, "status")
	if status == "" {
		status = "New"
	}

	return CreatedInvoice{InvoiceID: invoiceID, InvoiceURL: invoiceURL, Status: status}, nil
}

// GetInvoice fetches current invoice status from BTCPay.
func (r *Real) GetInvoice(invoiceID string) (Invoice, error) {
	data, err := r.request("GET", fmt.Sprintf("/api/v1/stores/%s/invoices/%s", r.StoreID, invoiceID), nil)
	if err != nil {
		return Invoice{}, err
	}

	status, _ := firstString(data, "status")
	additional, _ := firstString(data, "additionalStatus")
	currency, _ := firstString(data, "currency")

	var amount float64
	if v, ok := data["amount"].(float64); ok {
		amount = v
	}

	metadata := map[string]string{}
	if m, ok := data["metadata"].(map[string]interface{}); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				metadata[k] = s
			}
		}
	}

	return Invoice{
		Status:           status,
		Amount:           amount,
		Currency:         currency,
		Metadata:         metadata,
		AdditionalStatus: additional,
	}, nil
}

func firstString(data map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
