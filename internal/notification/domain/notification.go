package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/apperr"
	"github.com/fjod/coffee_saga/internal/events"
)

var ErrNotificationNotFound = apperr.New(apperr.NotFound, "NOTIFICATION_NOT_FOUND", "notification not found")

type Type string

const (
	TypeEmail Type = "EMAIL"
	TypeSMS   Type = "SMS"
	TypePush  Type = "PUSH"
)

const orderConfirmationTitle = "Order Confirmation"

type Notification struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  string     `json:"customer_id"`
	OrderID     string     `json:"order_id"`
	OrderNumber string     `json:"order_number"`
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// OrderConfirmation builds the e-mail notification sent for a created order.
func OrderConfirmation(e events.OrderCreated, now time.Time) *Notification {
	return &Notification{
		ID:          uuid.New(),
		CustomerID:  e.CustomerID,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		Type:        TypeEmail,
		Title:       orderConfirmationTitle,
		Message: fmt.Sprintf("Your order #%s has been confirmed. Total amount: %s",
			e.OrderNumber, e.TotalAmount.StringFixed(2)),
		CreatedAt: now,
	}
}

// MarkRead stamps the first read. Later calls keep the original time.
func (n *Notification) MarkRead(now time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	n.ReadAt = &now
}
