package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	notificationdomain "github.com/fjod/coffee_saga/internal/notification/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type NotificationService interface {
	ListForCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*notificationdomain.Notification, error)
	MarkRead(ctx context.Context, customerID string, id uuid.UUID) (*notificationdomain.Notification, error)
	Delete(ctx context.Context, customerID string, id uuid.UUID) error
}

type NotificationHandler struct {
	notifications NotificationService
	timeout       time.Duration
	log           *slog.Logger
}

func NewNotificationHandler(notifications NotificationService, timeout time.Duration, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, timeout: timeout, log: log}
}

// GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.notifications.ListForCustomer(ctx, getCustomerID(r.Context()), pagination(r))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if list == nil {
		list = []*notificationdomain.Notification{}
	}
	respondJSON(w, http.StatusOK, list)
}

// PUT /api/v1/notifications/{notification_id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := uuidParam(w, r, "notification_id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(ctx, getCustomerID(r.Context()), id)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// DELETE /api/v1/notifications/{notification_id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := uuidParam(w, r, "notification_id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(ctx, getCustomerID(r.Context()), id); err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
