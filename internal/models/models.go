package models

import "time"

// ProductRef is the snapshot of a catalog product taken when it is added to the cart
type ProductRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// CartLine is one product/quantity pairing in a cart
type CartLine struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
}

// PaymentMethod as returned by the backend payment-methods API
type PaymentMethod struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ForOnline bool   `json:"forOnline"`
	IsActive  bool   `json:"isActive"`
}

// CheckoutForm holds the delivery details and the chosen payment method
type CheckoutForm struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	Notes           string `json:"notes"`
	PaymentMethodID int64  `json:"payment_method_id"`
}

// UserProfile carries the delivery defaults of an authenticated user
type UserProfile struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// Payment terms
const (
	PaymentTermPrepaid = "PREPAID"
	PaymentTermCOD     = "COD"
)

// Order statuses used by the backend
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipping  = "SHIPPING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

// OrderItemPayload is one line of the order-creation request
type OrderItemPayload struct {
	ProductID      int64   `json:"productId"`
	Quantity       int     `json:"quantity"`
	Price          int64   `json:"price"`
	DiscountAmount int64   `json:"discountAmount"`
	VatRate        float64 `json:"vatRate"`
	VatAmount      int64   `json:"vatAmount"`
}

// CreateOrderRequest is the body sent to POST /orders
type CreateOrderRequest struct {
	DeliveryName    string             `json:"deliveryName"`
	DeliveryPhone   string             `json:"deliveryPhone"`
	DeliveryAddress string             `json:"deliveryAddress"`
	Notes           string             `json:"notes,omitempty"`
	PaymentMethodID int64              `json:"paymentMethodId"`
	PaymentTerm     string             `json:"paymentTerm"`
	IsOnline        bool               `json:"isOnline"`
	TotalAmount     int64              `json:"totalAmount"`
	Items           []OrderItemPayload `json:"items"`
	IdempotencyKey  string             `json:"idempotencyKey,omitempty"`
}

// OrderRecordItem is one line of a created order
type OrderRecordItem struct {
	ProductID      int64   `json:"productId"`
	ProductName    string  `json:"productName,omitempty"`
	Quantity       int     `json:"quantity"`
	Price          int64   `json:"price"`
	DiscountAmount int64   `json:"discountAmount"`
	VatRate        float64 `json:"vatRate"`
	VatAmount      int64   `json:"vatAmount"`
}

// OrderRecord is the full echo of an order as returned by the backend
type OrderRecord struct {
	ID              int64             `json:"id"`
	OrderNo         string            `json:"orderNo"`
	Status          string            `json:"status"`
	DeliveryName    string            `json:"deliveryName"`
	DeliveryPhone   string            `json:"deliveryPhone"`
	DeliveryAddress string            `json:"deliveryAddress"`
	Notes           string            `json:"notes,omitempty"`
	PaymentTerm     string            `json:"paymentTerm"`
	IsOnline        bool              `json:"isOnline"`
	TotalAmount     int64             `json:"totalAmount"`
	Items           []OrderRecordItem `json:"items"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Reconciliation is a detected bank payment whose order could not be created
type Reconciliation struct {
	ID             int64      `db:"id" json:"id"`
	VerificationID string     `db:"verification_id" json:"verification_id"`
	SessionID      string     `db:"session_id" json:"session_id"`
	Reference      string     `db:"reference" json:"reference"`
	ExpectedAmount int64      `db:"expected_amount" json:"expected_amount"`
	PaidAmount     float64    `db:"paid_amount" json:"paid_amount"`
	Description    string     `db:"description" json:"description"`
	CommitError    string     `db:"commit_error" json:"commit_error"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Reconciliation statuses
const (
	ReconciliationPending  = "PENDING"
	ReconciliationResolved = "RESOLVED"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
