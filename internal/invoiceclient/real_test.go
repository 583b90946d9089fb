package invoiceclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRealCreateInvoiceParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "token demo-key", req.Header.Get("Authorization"))
		require.Equal(t, "/api/v1/stores/store-1/invoices", req.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		require.Equal(t, "USD", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           "inv-123",
			"checkoutLink": "https://pay.example/i/inv-123",
			"status":       "New",
		})
	}))
	defer srv.Close()

	client := NewReal(srv.URL, "demo-key", "store-1", 0)
	inv, err := client.CreateInvoice(9.99, map[string]string{"task_id": "t1"})
	require.NoError(t, err)
	require.Equal(t, "inv-123", inv.InvoiceID)
	require.Equal(t, "https://pay.example/i/inv-123", inv.InvoiceURL)
	require.Equal(t, "New", inv.Status)
}

func TestRealCreateInvoiceMissingIDErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "New"})
	}))
	defer srv.Close()

	client := NewReal(srv.URL, "demo-key", "store-1", 0)
	_, err := client.CreateInvoice(1, nil)
	require.Error(t, err)
}

func TestRealGetInvoiceParsesPaidStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/api/v1/stores/store-1/invoices/inv-123", req.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "Settled",
			"additionalStatus": "",
			"currency":         "USD",
			"amount":           25.0,
			"metadata":         map[string]interface{}{"task_id": "t1"},
		})
	}))
	defer srv.Close()

	client := NewReal(srv.URL, "demo-key", "store-1", 0)
	inv, err := client.GetInvoice("inv-123")
	require.NoError(t, err)
	require.True(t, inv.Paid())
	require.Equal(t, 25.0, inv.Amount)
	require.Equal(t, "t1", inv.Metadata["task_id"])
}

func TestRealRequestSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad api key"))
	}))
	defer srv.Close()

	client := NewReal(srv.URL, "wrong-key", "store-1", 0)
	_, err := client.GetInvoice("inv-123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "btcpay_http_error")
}
