// Package service реализует бизнес-логику сервиса фотомастерской.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/printshop-system/internal/model"
	"github.com/mmeshcher/printshop-system/internal/reconcile"
	"github.com/mmeshcher/printshop-system/internal/repository"
	"github.com/mmeshcher/printshop-system/internal/validation"
)

// ErrValidation возвращается при некорректных входных данных. Проверка
// выполняется до каких-либо изменений: частичных записей не бывает.
var ErrValidation = errors.New("validation failed")

const (
	casMaxRetries = 3
	casRetryDelay = 50 * time.Millisecond
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateStage(ctx context.Context, s *model.Stage) error
	GetStage(ctx context.Context, id int64) (*model.Stage, error)
	UpdateStage(ctx context.Context, s *model.Stage) error
	ArchiveStage(ctx context.Context, id int64) error
	ListActiveStages(ctx context.Context) ([]model.Stage, error)
	CreateOrder(ctx context.Context, o *model.Order, p *model.Payment) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, o *model.Order) error
	GetPayment(ctx context.Context, id int64) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error
	ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]model.Payment, error)
}

// Notifier описывает контракт уведомления клиента о готовности заказа.
type Notifier interface {
	OrderReady(ctx context.Context, o *model.Order) error
}

// Service содержит бизнес-логику сервиса фотомастерской.
type Service struct {
	repo     Repository
	notifier Notifier
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом уведомлений.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// withCASRetry повторяет операцию чтение-слияние-запись при конфликте версий.
// Каждая попытка заново читает актуальную запись, поэтому параллельные
// изменения не затираются.
func withCASRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, repository.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// CreateStage создаёт новый этап конвейера.
func (s *Service) CreateStage(ctx context.Context, name string, rank int, colorTag string, qualified bool) (*model.Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: stage name must not be empty", ErrValidation)
	}

	stage := &model.Stage{
		Name:      name,
		Rank:      rank,
		ColorTag:  colorTag,
		Qualified: qualified,
	}

	if err := s.repo.CreateStage(ctx, stage); err != nil {
		return nil, err
	}

	return stage, nil
}

// StageUpdate описывает частичное обновление этапа: nil означает «поле не меняется».
type StageUpdate struct {
	Name      *string
	Rank      *int
	ColorTag  *string
	Qualified *bool
}

// UpdateStage применяет частичное обновление этапа. Отсутствующие поля
// сохраняют прежние значения.
func (s *Service) UpdateStage(ctx context.Context, id int64, upd StageUpdate) (*model.Stage, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: stage name must not be empty", ErrValidation)
	}

	var stage *model.Stage

	err := withCASRetry(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetStage(ctx, id)
		if err != nil {
			return err
		}

		if upd.Name != nil {
			cur.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Rank != nil {
			cur.Rank = *upd.Rank
		}
		if upd.ColorTag != nil {
			cur.ColorTag = *upd.ColorTag
		}
		if upd.Qualified != nil {
			cur.Qualified = *upd.Qualified
		}

		if err := s.repo.UpdateStage(ctx, cur); err != nil {
			return err
		}

		stage = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stage, nil
}

// ArchiveStage помечает этап архивным без физического удаления записи.
func (s *Service) ArchiveStage(ctx context.Context, id int64) error {
	return s.repo.ArchiveStage(ctx, id)
}

// ListActiveStages возвращает активные этапы конвейера в порядке ранга.
func (s *Service) ListActiveStages(ctx context.Context) ([]model.Stage, error) {
	return s.repo.ListActiveStages(ctx)
}

// CreateOrderInput описывает данные нового заказа вместе с начальными
// параметрами оплаты.
type CreateOrderInput struct {
	CustomerID    *int64
	CustomerName  string
	Phone         string
	ProductType   model.ProductType
	Size          string
	Quantity      int
	PhotoReceived bool
	AdvancePaid   float64
	TotalAmount   float64
	PaymentMode   string
	Notes         string
}

// CreateOrder создаёт заказ вместе с записью об оплате в одной транзакции.
// Производные поля оплаты рассчитываются до записи: пути создания без
// пересчёта не существует.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, *model.Payment, error) {
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, nil, fmt.Errorf("%w: customer name must not be empty", ErrValidation)
	}
	if !validation.IsValidPhone(strings.TrimSpace(in.Phone)) {
		return nil, nil, fmt.Errorf("%w: invalid phone number %q", ErrValidation, in.Phone)
	}
	if !model.IsValidProductType(in.ProductType) {
		return nil, nil, fmt.Errorf("%w: unknown product type %q", ErrValidation, in.ProductType)
	}
	if strings.TrimSpace(in.Size) == "" {
		return nil, nil, fmt.Errorf("%w: size must not be empty", ErrValidation)
	}
	if in.Quantity < 0 {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.AdvancePaid < 0 || in.TotalAmount < 0 {
		return nil, nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}

	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}

	order := &model.Order{
		CustomerID:    in.CustomerID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		Phone:         strings.TrimSpace(in.Phone),
		ProductType:   in.ProductType,
		Size:          strings.TrimSpace(in.Size),
		Quantity:      quantity,
		PhotoReceived: in.PhotoReceived,
		Status:        model.OrderStatusNew,
	}

	payment := &model.Payment{
		AdvanceCents: int64(in.AdvancePaid * 100),
		TotalCents:   int64(in.TotalAmount * 100),
		Mode:         in.PaymentMode,
		Notes:        in.Notes,
	}
	payment.BalanceCents, payment.Status = reconcile.Settle(payment.AdvanceCents, payment.TotalCents)

	if err := s.repo.CreateOrder(ctx, order, payment); err != nil {
		return nil, nil, err
	}

	return order, payment, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders возвращает все заказы от новых к старым.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx)
}

// SetOrderStatus переводит заказ в один из пяти фиксированных статусов.
// Порядок переходов не ограничивается: заказ может двигаться и назад.
// Дата доставки выставляется при первом переходе в статус Delivered.
func (s *Service) SetOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	if !model.IsValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}

	var order *model.Order

	err := withCASRetry(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return err
		}

		cur.Status = status
		if status == model.OrderStatusDelivered && cur.DeliveryDate == nil {
			now := time.Now().UTC()
			cur.DeliveryDate = &now
		}

		if err := s.repo.UpdateOrderStatus(ctx, cur); err != nil {
			return err
		}

		order = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == model.OrderStatusReady && s.notifier != nil {
		// Уведомление — лучшее из возможного: его сбой не влияет на результат операции.
		_ = s.notifier.OrderReady(ctx, order)
	}

	return order, nil
}

// PaymentUpdate описывает частичное обновление записи об оплате:
// nil означает «поле не меняется».
type PaymentUpdate struct {
	AdvancePaid *float64
	TotalAmount *float64
	Mode        *string
	Notes       *string
}

// ApplyPaymentUpdate применяет частичное обновление записи об оплате:
// читает текущую запись, накладывает только переданные поля, пересчитывает
// остаток и статус и сохраняет всё одной атомарной записью с проверкой
// версии. Вызывающая сторона никогда не увидит запись с устаревшими
// производными полями.
func (s *Service) ApplyPaymentUpdate(ctx context.Context, id int64, upd PaymentUpdate) (*model.Payment, error) {
	if upd.AdvancePaid != nil && *upd.AdvancePaid < 0 {
		return nil, fmt.Errorf("%w: advance must not be negative", ErrValidation)
	}
	if upd.TotalAmount != nil && *upd.TotalAmount < 0 {
		return nil, fmt.Errorf("%w: total must not be negative", ErrValidation)
	}

	var payment *model.Payment

	err := withCASRetry(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}

		if upd.AdvancePaid != nil {
			cur.AdvanceCents = int64(*upd.AdvancePaid * 100)
		}
		if upd.TotalAmount != nil {
			cur.TotalCents = int64(*upd.TotalAmount * 100)
		}
		if upd.Mode != nil {
			cur.Mode = *upd.Mode
		}
		if upd.Notes != nil {
			cur.Notes = *upd.Notes
		}

		cur.BalanceCents, cur.Status = reconcile.Settle(cur.AdvanceCents, cur.TotalCents)

		if err := s.repo.UpdatePayment(ctx, cur); err != nil {
			return err
		}

		payment = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

// ListPayments возвращает записи об оплате по фильтру. Условия фильтра
// объединяются по И, пустые условия пропускают все записи.
func (s *Service) ListPayments(ctx context.Context, status model.PaymentStatus, orderID int64) ([]model.Payment, error) {
	if status != "" && !model.IsValidPaymentStatus(status) {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, status)
	}

	return s.repo.ListPayments(ctx, repository.PaymentFilter{
		Status:  status,
		OrderID: orderID,
	})
}
