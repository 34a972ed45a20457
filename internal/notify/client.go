// Package notify предоставляет клиент внешней системы уведомления клиентов.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/printshop-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с системой уведомлений.
// Временные сбои сети ретраятся самим клиентом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// readyNotification описывает тело уведомления о готовности заказа.
type readyNotification struct {
	OrderID      int64  `json:"orderId"`
	CustomerName string `json:"customerName"`
	Phone        string `json:"phone"`
	ProductType  string `json:"productType"`
	Status       string `json:"status"`
}

// NewClient создаёт HTTP-клиент для обращения к системе уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// OrderReady отправляет уведомление о готовности заказа.
func (c *Client) OrderReady(ctx context.Context, o *model.Order) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(readyNotification{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		ProductType:  string(o.ProductType),
		Status:       string(o.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/api/notifications", base)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
