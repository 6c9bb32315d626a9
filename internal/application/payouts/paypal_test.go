package payouts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePaypalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Items []struct {
				SenderItemID string `json:"sender_item_id"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Items) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"batch_header": map[string]string{
				"payout_batch_id": "batch-" + body.Items[0].SenderItemID,
				"batch_status":    "PENDING",
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPaypalPayout_RoundTrip(t *testing.T) {
	srv := fakePaypalServer(t)
	client := &PaypalClient{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}

	batchID, err := client.Payout(context.Background(), 8000, "seller@example.com", "payout-abc")
	require.NoError(t, err)
	assert.Equal(t, "batch-payout-abc", batchID)
}

func TestPaypalPayout_ConcurrentCallsShareOneClient(t *testing.T) {
	srv := fakePaypalServer(t)
	client := &PaypalClient{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Payout(context.Background(), 100, "seller@example.com", "payout-concurrent")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// The fallback http.Client is shared; Payout must not write the field.
	assert.Nil(t, client.Client)
}

func TestPaypalPayout_TokenRejectionSurfaces(t *testing.T) {
	srv := fakePaypalServer(t)
	client := &PaypalClient{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "wrong-secret",
	}

	_, err := client.Payout(context.Background(), 100, "seller@example.com", "payout-denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token exchange failed")
}
