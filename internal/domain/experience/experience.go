// Package experience defines the bookable listing entity and the scoring
// heuristics behind the rank-experiences function.
package experience

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrTitleRequired = errors.New("experience: title is required")
	ErrHostRequired  = errors.New("experience: host is required")
	ErrNotFound      = errors.New("experience: not found")
)

// Experience is a bookable listing offered by a host.
type Experience struct {
	ID          string    `json:"id"`
	HostID      string    `json:"host_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	City        string    `json:"city,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Tags        []string  `json:"tags,omitempty"`
	PhotoURLs   []string  `json:"photo_urls,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateParams struct {
	ID          string
	HostID      string
	Title       string
	Description string
	Category    string
	City        string
	Latitude    float64
	Longitude   float64
	PriceCents  int64
	Tags        []string
	CreatedAt   time.Time
}

func New(params CreateParams) (*Experience, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	host := strings.TrimSpace(params.HostID)
	if host == "" {
		return nil, ErrHostRequired
	}
	created := params.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()
	return &Experience{
		ID:          strings.TrimSpace(params.ID),
		HostID:      host,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		Category:    strings.TrimSpace(strings.ToLower(params.Category)),
		City:        strings.TrimSpace(params.City),
		Latitude:    params.Latitude,
		Longitude:   params.Longitude,
		PriceCents:  params.PriceCents,
		Tags:        append([]string(nil), params.Tags...),
		Active:      true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}, nil
}

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RankParams drive Rank: a free-text query, an optional viewer location and
// the viewer's rating context per experience id.
type RankParams struct {
	Query     string
	Latitude  float64
	Longitude float64
	HasOrigin bool
	Ratings   map[string]float64
	Limit     int
}

// Ranked pairs an experience with its computed score.
type Ranked struct {
	Experience Experience `json:"experience"`
	Score      float64    `json:"score"`
}

// Rank orders experiences by a single-pass score: text match against title,
// description, category and tags, the experience's average rating, freshness
// and, when an origin is given, proximity. Higher scores sort first; ties
// break on newest.
func Rank(items []Experience, params RankParams) []Ranked {
	terms := queryTerms(params.Query)
	ranked := make([]Ranked, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		score := textScore(item, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		if rating, ok := params.Ratings[item.ID]; ok {
			score += rating * 2
		}
		if params.HasOrigin && (item.Latitude != 0 || item.Longitude != 0) {
			dist := DistanceKm(params.Latitude, params.Longitude, item.Latitude, item.Longitude)
			score += 10 / (1 + dist)
		}
		if time.Since(item.CreatedAt) < 30*24*time.Hour {
			score += 1
		}
		ranked = append(ranked, Ranked{Experience: item, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].Experience.CreatedAt.After(ranked[j].Experience.CreatedAt)
		}
		return ranked[i].Score > ranked[j].Score
	})
	if params.Limit > 0 && len(ranked) > params.Limit {
		ranked = ranked[:params.Limit]
	}
	return ranked
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func textScore(item Experience, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(item.Title)
	description := strings.ToLower(item.Description)
	score := 0.0
	for _, term := range terms {
		switch {
		case strings.Contains(title, term):
			score += 5
		case item.Category == term:
			score += 4
		case tagMatch(item.Tags, term):
			score += 3
		case strings.Contains(description, term):
			score += 2
		}
	}
	return score
}

func tagMatch(tags []string, term string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, term) {
			return true
		}
	}
	return false
}
