package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderCreated = "order.created"
	// HeaderEventType carries the event type on every Kafka message.
	HeaderEventType = "event_type"
)

type OrderItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// OrderCreated is published once per successfully created order.
type OrderCreated struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderType   string          `json:"orderType"`
	CreatedAt   time.Time       `json:"createdAt"`
	Items       []OrderItem     `json:"items"`
}
