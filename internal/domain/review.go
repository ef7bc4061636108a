package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Review defaults.
const (
	DefaultReviewMinBodyLength = 10
	DefaultReviewMaxImages     = 5
	AnonymousAuthor            = "Anonymous"
)

// Review is a rating left by a user for one product of one delivered order.
// At most one exists per (product, order, user) and it is never edited.
type Review struct {
	ProductID  string    `json:"product_id"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body"`
	Images     []string  `json:"images"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReviewRules are the configurable content limits of a review.
type ReviewRules struct {
	MinBodyLength int
	MaxImages     int
}

// DefaultReviewRules returns the shop's standard limits.
func DefaultReviewRules() ReviewRules {
	return ReviewRules{MinBodyLength: DefaultReviewMinBodyLength, MaxImages: DefaultReviewMaxImages}
}

// Normalize validates rating, body and images and returns the trimmed body.
// Body length is counted in characters, not bytes. A MinBodyLength of 0
// disables the length check.
func (r ReviewRules) Normalize(rating int, body string, images []string) (string, error) {
	if rating < 1 || rating > 5 {
		return "", apperrors.InvalidInput("rating must be between 1 and 5")
	}
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n < r.MinBodyLength {
		return "", apperrors.InvalidInput(fmt.Sprintf("review must be at least %d characters", r.MinBodyLength))
	}
	if len(images) > r.MaxImages {
		return "", apperrors.InvalidInput(fmt.Sprintf("at most %d images are allowed", r.MaxImages))
	}
	for _, img := range images {
		if strings.TrimSpace(img) == "" {
			return "", apperrors.InvalidInput("image url cannot be empty")
		}
	}
	return body, nil
}

// ReviewSummary aggregates the reviews of a product.
type ReviewSummary struct {
	ProductID     string      `json:"product_id"`
	AverageRating float64     `json:"average_rating"`
	TotalCount    int         `json:"total_count"`
	RatingCounts  map[int]int `json:"rating_counts"`
}

// Summarize computes the summary of reviews. The average is rounded to one
// decimal place.
func Summarize(productID string, reviews []Review) ReviewSummary {
	s := ReviewSummary{
		ProductID:    productID,
		RatingCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	var sum int
	for _, r := range reviews {
		s.RatingCounts[r.Rating]++
		sum += r.Rating
	}
	s.TotalCount = len(reviews)
	if s.TotalCount > 0 {
		s.AverageRating = math.Round(float64(sum)/float64(s.TotalCount)*10) / 10
	}
	return s
}
