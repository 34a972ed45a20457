// Package handler содержит HTTP-обработчики API сервиса фотомастерской.
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/printshop-system/internal/middleware"
	"github.com/mmeshcher/printshop-system/internal/model"
	"github.com/mmeshcher/printshop-system/internal/repository"
	"github.com/mmeshcher/printshop-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateStage(ctx context.Context, name string, rank int, colorTag string, qualified bool) (*model.Stage, error)
	UpdateStage(ctx context.Context, id int64, upd service.StageUpdate) (*model.Stage, error)
	ArchiveStage(ctx context.Context, id int64) error
	ListActiveStages(ctx context.Context) ([]model.Stage, error)
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, *model.Payment, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	ApplyPaymentUpdate(ctx context.Context, id int64, upd service.PaymentUpdate) (*model.Payment, error)
	ListPayments(ctx context.Context, status model.PaymentStatus, orderID int64) ([]model.Payment, error)
}

// Handler реализует HTTP-обработчики API сервиса фотомастерской.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware

	adminLogin    string
	adminPassword string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminLogin, adminPassword string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminLogin:     adminLogin,
		adminPassword:  adminPassword,
	}
}

// statusForError транслирует ошибки ядра в HTTP-коды: ошибки валидации — 400,
// отсутствующие записи — 404, неразрешённый конфликт версий — 409,
// всё остальное — сбой хранилища, 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrStageNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию сотрудника и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !secureEqual(req.Login, h.adminLogin) || !secureEqual(req.Password, h.adminPassword) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetAuthCookie(w, 1)
	w.WriteHeader(http.StatusOK)
}

func secureEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return hmac.Equal(ha[:], hb[:])
}

type stageCreateRequest struct {
	Name        string `json:"name"`
	Rank        int    `json:"rank"`
	ColorTag    string `json:"colorTag"`
	IsQualified bool   `json:"isQualified"`
}

type stageUpdateRequest struct {
	Name        *string `json:"name"`
	Rank        *int    `json:"rank"`
	ColorTag    *string `json:"colorTag"`
	IsQualified *bool   `json:"isQualified"`
}

type stageResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Rank        int    `json:"rank"`
	ColorTag    string `json:"colorTag"`
	IsQualified bool   `json:"isQualified"`
	IsArchived  bool   `json:"isArchived"`
	CreatedAt   string `json:"createdAt"`
}

func toStageResponse(s *model.Stage) stageResponse {
	return stageResponse{
		ID:          s.ID,
		Name:        s.Name,
		Rank:        s.Rank,
		ColorTag:    s.ColorTag,
		IsQualified: s.Qualified,
		IsArchived:  s.State == model.StageStateArchived,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

// CreateStage создаёт новый этап конвейера.
func (h *Handler) CreateStage(w http.ResponseWriter, r *http.Request) {
	var req stageCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stage, err := h.service.CreateStage(r.Context(), req.Name, req.Rank, req.ColorTag, req.IsQualified)
	if err != nil {
		h.writeError(w, err, "create stage error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toStageResponse(stage))
}

// GetStages возвращает активные этапы конвейера в порядке ранга.
func (h *Handler) GetStages(w http.ResponseWriter, r *http.Request) {
	stages, err := h.service.ListActiveStages(r.Context())
	if err != nil {
		h.writeError(w, err, "list stages error")
		return
	}

	resp := make([]stageResponse, 0, len(stages))
	for i := range stages {
		resp = append(resp, toStageResponse(&stages[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateStage применяет частичное обновление этапа.
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req stageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stage, err := h.service.UpdateStage(r.Context(), id, service.StageUpdate{
		Name:      req.Name,
		Rank:      req.Rank,
		ColorTag:  req.ColorTag,
		Qualified: req.IsQualified,
	})
	if err != nil {
		h.writeError(w, err, "update stage error")
		return
	}

	h.writeJSON(w, http.StatusOK, toStageResponse(stage))
}

// ArchiveStage помечает этап архивным. Запись не удаляется физически.
func (h *Handler) ArchiveStage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ArchiveStage(r.Context(), id); err != nil {
		h.writeError(w, err, "archive stage error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type createOrderRequest struct {
	CustomerID    *int64  `json:"customerId"`
	CustomerName  string  `json:"customerName"`
	Phone         string  `json:"phone"`
	ProductType   string  `json:"productType"`
	Size          string  `json:"size"`
	Quantity      int     `json:"quantity"`
	PhotoReceived bool    `json:"photoReceived"`
	AdvancePaid   float64 `json:"advancePaid"`
	TotalAmount   float64 `json:"totalAmount"`
	PaymentMode   string  `json:"paymentMode"`
	Notes         string  `json:"notes"`
}

type orderResponse struct {
	ID            int64  `json:"id"`
	CustomerID    *int64 `json:"customerId,omitempty"`
	CustomerName  string `json:"customerName"`
	Phone         string `json:"phone"`
	ProductType   string `json:"productType"`
	Size          string `json:"size"`
	Quantity      int    `json:"quantity"`
	PhotoReceived bool   `json:"photoReceived"`
	Status        string `json:"status"`
	OrderDate     string `json:"orderDate"`
	DeliveryDate  string `json:"deliveryDate,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		CustomerName:  o.CustomerName,
		Phone:         o.Phone,
		ProductType:   string(o.ProductType),
		Size:          o.Size,
		Quantity:      o.Quantity,
		PhotoReceived: o.PhotoReceived,
		Status:        string(o.Status),
		OrderDate:     o.OrderDate.Format(time.RFC3339),
	}
	if o.DeliveryDate != nil {
		resp.DeliveryDate = o.DeliveryDate.Format(time.RFC3339)
	}
	return resp
}

type paymentResponse struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"orderId"`
	AdvancePaid float64 `json:"advancePaid"`
	TotalAmount float64 `json:"totalAmount"`
	Balance     float64 `json:"balance"`
	Status      string  `json:"status"`
	PaymentMode string  `json:"paymentMode"`
	Notes       string  `json:"notes"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		OrderID:     p.OrderID,
		AdvancePaid: float64(p.AdvanceCents) / 100,
		TotalAmount: float64(p.TotalCents) / 100,
		Balance:     float64(p.BalanceCents) / 100,
		Status:      string(p.Status),
		PaymentMode: p.Mode,
		Notes:       p.Notes,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

type createOrderResponse struct {
	Order   orderResponse   `json:"order"`
	Payment paymentResponse `json:"payment"`
}

// CreateOrder создаёт заказ вместе с записью об оплате.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, payment, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		ProductType:   model.ProductType(req.ProductType),
		Size:          req.Size,
		Quantity:      req.Quantity,
		PhotoReceived: req.PhotoReceived,
		AdvancePaid:   req.AdvancePaid,
		TotalAmount:   req.TotalAmount,
		PaymentMode:   req.PaymentMode,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "create order error")
		return
	}

	h.writeJSON(w, http.StatusCreated, createOrderResponse{
		Order:   toOrderResponse(order),
		Payment: toPaymentResponse(payment),
	})
}

// GetOrders возвращает список всех заказов от новых к старым.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, err, "list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get order error")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetOrderStatus переводит заказ в указанный статус.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.SetOrderStatus(r.Context(), id, model.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, err, "set order status error")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type paymentUpdateRequest struct {
	AdvancePaid *float64 `json:"advancePaid"`
	TotalAmount *float64 `json:"totalAmount"`
	PaymentMode *string  `json:"paymentMode"`
	Notes       *string  `json:"notes"`
}

// UpdatePayment применяет частичное обновление записи об оплате и возвращает
// запись с пересчитанными производными полями.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, err := h.service.ApplyPaymentUpdate(r.Context(), id, service.PaymentUpdate{
		AdvancePaid: req.AdvancePaid,
		TotalAmount: req.TotalAmount,
		Mode:        req.PaymentMode,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "update payment error")
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// GetPayments возвращает записи об оплате с фильтрацией по статусу и заказу.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	var orderID int64
	if v := r.URL.Query().Get("orderId"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		orderID = parsed
	}

	status := model.PaymentStatus(r.URL.Query().Get("status"))

	payments, err := h.service.ListPayments(r.Context(), status, orderID)
	if err != nil {
		h.writeError(w, err, "list payments error")
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}
