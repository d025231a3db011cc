package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/notify"
	"github.com/sungwon/mailqueue/internal/queue"
)

// NotificationSender records an in-app notification and queues its email.
type NotificationSender interface {
	Notification(ctx context.Context, u notify.User, alert notify.Alert) (uuid.UUID, error)
}

type notificationRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActionURL string `json:"action_url"`
	Priority  string `json:"priority"`
}

// CreateNotificationHandler handles POST /api/v1/notifications.
func CreateNotificationHandler(svc NotificationSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var errs []string
		if strings.TrimSpace(req.Email) == "" {
			errs = append(errs, "email is required")
		}
		if strings.TrimSpace(req.Title) == "" {
			errs = append(errs, "title is required")
		}
		priority, err := queue.ParsePriority(req.Priority)
		if err != nil {
			errs = append(errs, "priority must be one of urgent, high, normal, low")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		id, err := svc.Notification(r.Context(),
			notify.User{Email: req.Email, Name: req.Name},
			notify.Alert{Title: req.Title, Message: req.Message, ActionURL: req.ActionURL, Priority: priority},
		)
		if err != nil {
			status, msg := enqueueErrorStatus(err)
			if status == http.StatusInternalServerError {
				log := logger.FromContext(r.Context())
				log.Error().Err(err).Msg("notification failed")
			}
			respondError(w, status, msg)
			return
		}

		respondJSON(w, http.StatusAccepted, map[string]any{
			"id":     id,
			"status": queue.StatusPending,
		})
	}
}
