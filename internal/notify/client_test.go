package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/printshop-system/internal/model"
)

func TestOrderReady_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/notifications" {
			t.Fatalf("path = %s, want /api/notifications", r.URL.Path)
		}

		var body readyNotification
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.OrderID != 7 || body.CustomerName != "Анна" || body.Status != "Ready" {
			t.Fatalf("unexpected body: %+v", body)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order := &model.Order{
		ID:           7,
		CustomerName: "Анна",
		Phone:        "+7 916 123-45-67",
		ProductType:  model.ProductTypeAlbum,
		Status:       model.OrderStatusReady,
	}

	if err := client.OrderReady(ctx, order); err != nil {
		t.Fatalf("OrderReady error: %v", err)
	}
}

func TestOrderReady_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.OrderReady(ctx, &model.Order{ID: 1, Status: model.OrderStatusReady})
	if err == nil {
		t.Fatalf("expected error for status 400")
	}
}

func TestOrderReady_NotConfigured(t *testing.T) {
	client := NewClient("")

	err := client.OrderReady(context.Background(), &model.Order{ID: 1})
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
