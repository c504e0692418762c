package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"livelocal/internal/domain/experience"
	"livelocal/internal/domain/reviews"
	"livelocal/internal/platform"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// Function names the client invokes.
const (
	FnRankExperiences = "rank-experiences"
	FnCreateCheckout  = "create-checkout-session"
	FnSendEmail       = "send-email"
)

// MailPublisher hands mail jobs to a broker; the Kafka relay provides one
// in production and the server falls back to log-only delivery without it.
type MailPublisher interface {
	PublishMail(ctx context.Context, payload []byte) error
}

// RegisterBuiltins wires the three product functions into the registry.
func RegisterBuiltins(r *Registry, tables platform.TableStore, checkoutBaseURL string, mail MailPublisher, logger *slog.Logger) {
	r.Register(FnRankExperiences, RankExperiences(tables))
	r.Register(FnCreateCheckout, CreateCheckout(checkoutBaseURL))
	r.Register(FnSendEmail, SendEmail(mail, logger))
}

type rankRequest struct {
	Query     string  `json:"query"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	HasOrigin bool    `json:"has_origin"`
	Limit     int     `json:"limit"`
}

// RankExperiences scores active experiences against a text query, the
// viewer's location and each experience's average rating.
func RankExperiences(tables platform.TableStore) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req rankRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("rank-experiences: decode payload: %w", err)
		}
		rows, err := tables.Select(ctx, remote.SelectParams{Table: schema.TableExperiences})
		if err != nil {
			return nil, fmt.Errorf("rank-experiences: load experiences: %w", err)
		}
		items, err := remote.DecodeRows[experience.Experience](schema.TableExperiences, rows)
		if err != nil {
			return nil, err
		}
		ratings, err := averageRatings(ctx, tables)
		if err != nil {
			return nil, err
		}
		ranked := experience.Rank(items, experience.RankParams{
			Query:     req.Query,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			HasOrigin: req.HasOrigin,
			Ratings:   ratings,
			Limit:     req.Limit,
		})
		return map[string]any{"results": ranked}, nil
	}
}

func averageRatings(ctx context.Context, tables platform.TableStore) (map[string]float64, error) {
	rows, err := tables.Select(ctx, remote.SelectParams{Table: schema.TableReviews})
	if err != nil {
		return nil, fmt.Errorf("rank-experiences: load reviews: %w", err)
	}
	all, err := remote.DecodeRows[reviews.Review](schema.TableReviews, rows)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]int)
	for _, review := range all {
		grouped[review.ExperienceID] = append(grouped[review.ExperienceID], review.Rating)
	}
	out := make(map[string]float64, len(grouped))
	for id, values := range grouped {
		out[id] = reviews.AggregateRatings(values).Average
	}
	return out, nil
}

type checkoutRequest struct {
	BookingID   string `json:"booking_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CreateCheckout issues an opaque redirect URL for a payment session. The
// actual processor is external; this endpoint only mints the session.
func CreateCheckout(baseURL string) Handler {
	return func(_ context.Context, payload json.RawMessage) (any, error) {
		var req checkoutRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("create-checkout-session: decode payload: %w", err)
		}
		if strings.TrimSpace(req.BookingID) == "" {
			return nil, fmt.Errorf("create-checkout-session: booking_id is required")
		}
		if req.AmountCents <= 0 {
			return nil, fmt.Errorf("create-checkout-session: amount must be positive")
		}
		sessionID := uuid.NewString()
		return map[string]any{
			"session_id": sessionID,
			"url":        fmt.Sprintf("%s/session/%s", strings.TrimRight(baseURL, "/"), sessionID),
		}, nil
	}
}

type mailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendEmail enqueues a mail job. Without a broker the job is logged and
// dropped, which keeps local runs working.
func SendEmail(mail MailPublisher, logger *slog.Logger) Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req mailRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("send-email: decode payload: %w", err)
		}
		if strings.TrimSpace(req.To) == "" {
			return nil, fmt.Errorf("send-email: recipient is required")
		}
		if mail == nil {
			if logger != nil {
				logger.Info("mail broker not configured, dropping job", "to", req.To, "subject", req.Subject)
			}
			return map[string]any{"queued": false}, nil
		}
		if err := mail.PublishMail(ctx, payload); err != nil {
			return nil, fmt.Errorf("send-email: enqueue: %w", err)
		}
		return map[string]any{"queued": true}, nil
	}
}
