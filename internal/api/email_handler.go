package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/template"
)

const maxRequestBody = 1 << 20

// EmailService is the queue API exposed over HTTP.
type EmailService interface {
	Enqueue(ctx context.Context, params queue.EnqueueParams) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*queue.Email, error)
	Events(ctx context.Context, id uuid.UUID) ([]queue.Event, error)
	ProcessQueue(ctx context.Context, batchSize int) (queue.BatchResult, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type enqueueRequest struct {
	RecipientEmail string         `json:"recipient_email"`
	RecipientName  string         `json:"recipient_name"`
	TemplateType   string         `json:"template_type"`
	TemplateData   map[string]any `json:"template_data"`
	Priority       string         `json:"priority"`
	ScheduledFor   *time.Time     `json:"scheduled_for"`
	NotificationID *uuid.UUID     `json:"notification_id"`
	Metadata       map[string]any `json:"metadata"`
	MaxAttempts    int            `json:"max_attempts"`
}

type emailResponse struct {
	ID                uuid.UUID      `json:"id"`
	NotificationID    *uuid.UUID     `json:"notification_id,omitempty"`
	RecipientEmail    string         `json:"recipient_email"`
	RecipientName     string         `json:"recipient_name,omitempty"`
	TemplateType      string         `json:"template_type"`
	Subject           string         `json:"subject"`
	HTMLContent       string         `json:"html_content"`
	TextContent       string         `json:"text_content"`
	Priority          string         `json:"priority"`
	Status            string         `json:"status"`
	Attempts          int            `json:"attempts"`
	MaxAttempts       int            `json:"max_attempts"`
	ScheduledFor      time.Time      `json:"scheduled_for"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	FailedAt          *time.Time     `json:"failed_at,omitempty"`
}

func toEmailResponse(e *queue.Email) emailResponse {
	return emailResponse{
		ID:                e.ID,
		NotificationID:    e.NotificationID,
		RecipientEmail:    e.RecipientEmail,
		RecipientName:     e.RecipientName,
		TemplateType:      e.TemplateType,
		Subject:           e.Subject,
		HTMLContent:       e.HTMLContent,
		TextContent:       e.TextContent,
		Priority:          string(e.Priority),
		Status:            string(e.Status),
		Attempts:          e.Attempts,
		MaxAttempts:       e.MaxAttempts,
		ScheduledFor:      e.ScheduledFor,
		ErrorMessage:      e.ErrorMessage,
		ProviderMessageID: e.ProviderMessageID,
		Metadata:          e.Metadata,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		SentAt:            e.SentAt,
		FailedAt:          e.FailedAt,
	}
}

type eventResponse struct {
	ID             uuid.UUID      `json:"id"`
	EventType      string         `json:"event_type"`
	RecipientEmail string         `json:"recipient_email"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func validateEnqueue(req *enqueueRequest) []string {
	var errs []string
	if strings.TrimSpace(req.RecipientEmail) == "" {
		errs = append(errs, "recipient_email is required")
	}
	if strings.TrimSpace(req.TemplateType) == "" {
		errs = append(errs, "template_type is required")
	}
	if _, err := queue.ParsePriority(req.Priority); err != nil {
		errs = append(errs, "priority must be one of urgent, high, normal, low")
	}
	if req.MaxAttempts < 0 || req.MaxAttempts > 10 {
		errs = append(errs, "max_attempts must be between 0 and 10")
	}
	return errs
}

// EnqueueEmailHandler handles POST /api/v1/emails.
func EnqueueEmailHandler(svc EmailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if errs := validateEnqueue(&req); len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		priority, _ := queue.ParsePriority(req.Priority)
		params := queue.EnqueueParams{
			RecipientEmail: req.RecipientEmail,
			RecipientName:  req.RecipientName,
			TemplateType:   req.TemplateType,
			TemplateData:   req.TemplateData,
			Priority:       priority,
			NotificationID: req.NotificationID,
			Metadata:       req.Metadata,
			MaxAttempts:    req.MaxAttempts,
		}
		if req.ScheduledFor != nil {
			params.ScheduledFor = *req.ScheduledFor
		}

		id, err := svc.Enqueue(r.Context(), params)
		if err != nil {
			status, msg := enqueueErrorStatus(err)
			if status == http.StatusInternalServerError {
				log := logger.FromContext(r.Context())
				log.Error().Err(err).Msg("enqueue failed")
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

func enqueueErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, template.ErrTemplateNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, template.ErrTemplateCompile):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, queue.ErrInvalidRecipient), errors.Is(err, queue.ErrInvalidPriority):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "failed to enqueue email"
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid email ID")
		return uuid.Nil, false
	}
	return id, true
}

// GetEmailHandler handles GET /api/v1/emails/{id}.
func GetEmailHandler(svc EmailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		e, err := svc.Get(r.Context(), id)
		if errors.Is(err, queue.ErrNotFound) {
			respondError(w, http.StatusNotFound, "email not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get email")
			return
		}
		respondJSON(w, http.StatusOK, toEmailResponse(e))
	}
}

// ListEmailEventsHandler handles GET /api/v1/emails/{id}/events.
func ListEmailEventsHandler(svc EmailService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		if _, err := svc.Get(r.Context(), id); err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				respondError(w, http.StatusNotFound, "email not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to get email")
			return
		}
		events, err := svc.Events(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
		out := make([]eventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, eventResponse{
				ID:             ev.ID,
				EventType:      string(ev.EventType),
				RecipientEmail: ev.RecipientEmail,
				Metadata:       ev.Metadata,
				CreatedAt:      ev.CreatedAt,
			})
		}
		respondJSON(w, http.StatusOK, out)
	}
}
