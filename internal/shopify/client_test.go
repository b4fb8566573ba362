package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

func TestGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/450789469.json", r.URL.Path)
		assert.Equal(t, "shpat_key", r.Header.Get("X-Shopify-Access-Token"))
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{
				"id":                 450789469,
				"order_number":       1042,
				"tags":               "vip, confirmed",
				"fulfillment_status": "fulfilled",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("but-store", "shpat_key", "2024-07", logging.Default())
	client.SetBaseURL(srv.URL)

	order, err := client.GetOrder(context.Background(), 450789469)
	require.NoError(t, err)
	assert.Equal(t, int64(1042), order.OrderNumber)
	assert.True(t, order.Fulfilled())
}

func TestGetOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("but-store", "shpat_key", "", logging.Default())
	client.SetBaseURL(srv.URL)

	_, err := client.GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateTags(t *testing.T) {
	var got orderUpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("but-store", "shpat_key", "", logging.Default())
	client.SetBaseURL(srv.URL)

	require.NoError(t, client.UpdateTags(context.Background(), 450789469, "vip, confirmed"))
	assert.Equal(t, int64(450789469), got.Order.ID)
	assert.Equal(t, "vip, confirmed", got.Order.Tags)
}

func TestMergeStatusTag(t *testing.T) {
	assert.Equal(t, "vip, confirmed", MergeStatusTag("vip", "confirmed"))
	assert.Equal(t, "vip, cancelled", MergeStatusTag("vip, confirmed", "cancelled"))
	assert.Equal(t, "confirmed", MergeStatusTag("", "confirmed"))
	assert.Equal(t, "vip, wholesale, confirmed", MergeStatusTag("vip,  wholesale , Cancelled", "confirmed"))
}
