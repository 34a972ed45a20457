// Package model содержит доменные сущности сервиса фотомастерской.
package model

import "time"

// ProductType описывает тип изготавливаемой продукции.
type ProductType string

const (
	ProductTypePhotoFrame   ProductType = "PhotoFrame"
	ProductTypeDigitalPhoto ProductType = "DigitalPhoto"
	ProductTypeAlbum        ProductType = "Album"
)

// IsValidProductType проверяет, что значение входит в перечень типов продукции.
func IsValidProductType(v ProductType) bool {
	switch v {
	case ProductTypePhotoFrame, ProductTypeDigitalPhoto, ProductTypeAlbum:
		return true
	}
	return false
}

// OrderStatus описывает статус выполнения заказа. Набор статусов фиксированный
// и не связан с настраиваемыми этапами конвейера (Stage).
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "New"
	OrderStatusDesigning OrderStatus = "Designing"
	OrderStatusPrinting  OrderStatus = "Printing"
	OrderStatusReady     OrderStatus = "Ready"
	OrderStatusDelivered OrderStatus = "Delivered"
)

// IsValidOrderStatus проверяет, что значение входит в перечень статусов заказа.
func IsValidOrderStatus(v OrderStatus) bool {
	switch v {
	case OrderStatusNew, OrderStatusDesigning, OrderStatusPrinting, OrderStatusReady, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentStatus описывает расчётный статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "Unpaid"
	PaymentStatusPartial PaymentStatus = "Partial"
	PaymentStatusPaid    PaymentStatus = "Paid"
)

// IsValidPaymentStatus проверяет, что значение входит в перечень статусов оплаты.
func IsValidPaymentStatus(v PaymentStatus) bool {
	switch v {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// StageState описывает состояние жизненного цикла этапа конвейера.
type StageState string

const (
	StageStateActive   StageState = "ACTIVE"
	StageStateArchived StageState = "ARCHIVED"
)

// Stage описывает настраиваемый этап производственного конвейера.
// Архивированный этап исключается из активного конвейера, но запись никогда
// не удаляется физически: заказы могут ссылаться на него исторически.
type Stage struct {
	ID        int64
	Name      string
	Rank      int
	ColorTag  string
	Qualified bool
	State     StageState
	Version   int64
	CreatedAt time.Time
}

// Order описывает заказ клиента.
type Order struct {
	ID            int64
	CustomerID    *int64
	CustomerName  string
	Phone         string
	ProductType   ProductType
	Size          string
	Quantity      int
	PhotoReceived bool
	Status        OrderStatus
	OrderDate     time.Time
	DeliveryDate  *time.Time
	Version       int64
}

// Payment описывает запись об оплате заказа. Поля BalanceCents и Status
// производные: они пересчитываются из AdvanceCents и TotalCents при каждой
// записи и никогда не сохраняются отдельно от своих исходных полей.
type Payment struct {
	ID           int64
	OrderID      int64
	AdvanceCents int64
	TotalCents   int64
	BalanceCents int64
	Status       PaymentStatus
	Mode         string
	Notes        string
	Version      int64
	UpdatedAt    time.Time
}
