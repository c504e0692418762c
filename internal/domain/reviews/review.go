package reviews

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidRating = errors.New("reviews: rating must be between 1 and 5")
	ErrAlreadyExists = errors.New("reviews: booking already reviewed")
	ErrNotFound      = errors.New("reviews: not found")
)

// Review is a guest's rating of an experience after a completed booking.
type Review struct {
	ID           string    `json:"id"`
	BookingID    string    `json:"booking_id"`
	AuthorID     string    `json:"author_id"`
	ExperienceID string    `json:"experience_id"`
	Rating       int       `json:"rating"`
	Text         string    `json:"text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SubmitParams struct {
	ID           string
	BookingID    string
	AuthorID     string
	ExperienceID string
	Rating       int
	Text         string
	CreatedAt    time.Time
}

func Submit(params SubmitParams) (*Review, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return nil, ErrInvalidRating
	}
	created := params.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &Review{
		ID:           params.ID,
		BookingID:    params.BookingID,
		AuthorID:     params.AuthorID,
		ExperienceID: params.ExperienceID,
		Rating:       params.Rating,
		Text:         strings.TrimSpace(params.Text),
		CreatedAt:    created.UTC(),
	}, nil
}

// Aggregate summarizes all ratings of one experience. Average is the mean
// rounded half away from zero to one decimal (4.25 rounds to 4.3); an
// experience with no ratings aggregates to {0, 0}.
type Aggregate struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// AggregateRatings folds rating values into an Aggregate.
func AggregateRatings(values []int) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))
	return Aggregate{
		Average: math.Round(mean*10) / 10,
		Count:   len(values),
	}
}
