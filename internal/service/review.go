package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/mobileshop/internal/blob"
	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/repository"
	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
	"github.com/utafrali/mobileshop/pkg/pagination"
)

// DefaultMaxImageBytes caps a review photo upload.
const DefaultMaxImageBytes = 5 << 20

// ReviewOptions tunes the review gate.
type ReviewOptions struct {
	Rules         domain.ReviewRules
	RewardPoints  int64
	MaxImageBytes int64
}

// DefaultReviewOptions returns the shop's standard review settings.
func DefaultReviewOptions() ReviewOptions {
	return ReviewOptions{
		Rules:         domain.DefaultReviewRules(),
		RewardPoints:  domain.DefaultReviewReward,
		MaxImageBytes: DefaultMaxImageBytes,
	}
}

// ReviewService gates, stores and rewards product reviews.
type ReviewService struct {
	store  store.Store
	blobs  blob.Storage
	events *event.Producer
	logger *slog.Logger
	opts   ReviewOptions
	now    func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(st store.Store, blobs blob.Storage, events *event.Producer, logger *slog.Logger, opts ReviewOptions) *ReviewService {
	return &ReviewService{
		store:  st,
		blobs:  blobs,
		events: events,
		logger: logger,
		opts:   opts,
		now:    utcNow,
	}
}

// SubmitReviewInput holds a new review.
type SubmitReviewInput struct {
	ProductID string
	OrderID   string
	UserID    string
	Rating    int
	Body      string
	Images    []string
}

// SubmitReviewResult is the stored review and the resulting balance.
type SubmitReviewResult struct {
	Review        *domain.Review         `json:"review"`
	PointsAwarded int64                  `json:"points_awarded"`
	Points        *domain.LoyaltyAccount `json:"points"`
}

// reviewableOrder loads the user's order and checks it contains productID.
func reviewableOrder(ctx context.Context, repo *repository.Repository, productID, orderID, userID string) (*domain.Order, error) {
	order, err := repo.Order(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasProduct(productID) {
		return nil, apperrors.NotFound("product in order", productID)
	}
	return order, nil
}

func validateReviewKey(productID, orderID, userID string) error {
	if err := requireID("product_id", productID); err != nil {
		return err
	}
	if err := requireID("order_id", orderID); err != nil {
		return err
	}
	return requireID("user_id", userID)
}

// CanReview reports whether the user may review productID from orderID: the
// order must be delivered and not yet reviewed for that product.
func (s *ReviewService) CanReview(ctx context.Context, productID, orderID, userID string) (bool, error) {
	if err := validateReviewKey(productID, orderID, userID); err != nil {
		return false, err
	}
	repo := repository.New(s.store)
	order, err := reviewableOrder(ctx, repo, productID, orderID, userID)
	if err != nil {
		return false, fmt.Errorf("check review eligibility: %w", err)
	}
	if order.Status != domain.StatusDelivered {
		return false, nil
	}
	exists, err := repo.ReviewExists(ctx, productID, orderID, userID)
	if err != nil {
		return false, fmt.Errorf("check review eligibility: %w", err)
	}
	return !exists, nil
}

// SubmitReview stores a review and credits the reward points in one
// transaction.
func (s *ReviewService) SubmitReview(ctx context.Context, input SubmitReviewInput) (*SubmitReviewResult, error) {
	if err := validateReviewKey(input.ProductID, input.OrderID, input.UserID); err != nil {
		return nil, err
	}
	body, err := s.opts.Rules.Normalize(input.Rating, input.Body, input.Images)
	if err != nil {
		return nil, err
	}

	var (
		review *domain.Review
		acct   *domain.LoyaltyAccount
	)
	err = s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		now := s.now()

		order, err := reviewableOrder(ctx, repo, input.ProductID, input.OrderID, input.UserID)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusDelivered {
			return domain.ErrReviewNotAllowed(order.Status)
		}
		exists, err := repo.ReviewExists(ctx, input.ProductID, input.OrderID, input.UserID)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.AlreadyExists("review", "order", input.OrderID)
		}

		profile, err := repo.Profile(ctx, input.UserID)
		if err != nil {
			return err
		}
		review = &domain.Review{
			ProductID:  input.ProductID,
			OrderID:    input.OrderID,
			UserID:     input.UserID,
			Rating:     input.Rating,
			Body:       body,
			Images:     append([]string{}, input.Images...),
			AuthorName: profile.DisplayName(),
			CreatedAt:  now,
		}
		if err := repo.PutReview(ctx, review); err != nil {
			return err
		}

		acct, err = repo.Points(ctx, input.UserID)
		if err != nil {
			return err
		}
		if s.opts.RewardPoints > 0 {
			if err := acct.Credit(s.opts.RewardPoints, now); err != nil {
				return err
			}
			return repo.PutPoints(ctx, input.UserID, acct)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}

	reviewsSubmitted.Inc()
	s.logger.InfoContext(ctx, "review submitted",
		slog.String("product_id", review.ProductID),
		slog.String("order_id", review.OrderID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
		slog.Int64("points_awarded", s.opts.RewardPoints),
	)

	err = s.events.PublishReviewSubmitted(ctx, review, s.opts.RewardPoints)
	logPublishError(ctx, s.logger, event.TopicReviewSubmitted, err, slog.String("order_id", review.OrderID))
	publishPointsChange(ctx, s.events, s.logger, domain.PointsChange{
		UserID:  review.UserID,
		Delta:   max(s.opts.RewardPoints, 0),
		Balance: acct.Balance,
		Reason:  domain.PointsReasonReview,
	})

	return &SubmitReviewResult{Review: review, PointsAwarded: max(s.opts.RewardPoints, 0), Points: acct}, nil
}

// UploadReviewImage stores a review photo and returns its URL.
func (s *ReviewService) UploadReviewImage(ctx context.Context, userID, contentType string, r io.Reader, size int64) (string, error) {
	if err := requireID("user_id", userID); err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperrors.InvalidInput("only image uploads are accepted")
	}
	if size > s.opts.MaxImageBytes {
		return "", apperrors.InvalidInput(fmt.Sprintf("image exceeds %d bytes", s.opts.MaxImageBytes))
	}

	key := fmt.Sprintf("reviews/%s/%d.jpg", userID, s.now().UnixMilli())
	limited := &limitedReader{r: r, remaining: s.opts.MaxImageBytes}
	url, err := s.blobs.Upload(ctx, key, contentType, limited, size)
	if errors.Is(err, errImageTooLarge) {
		return "", apperrors.InvalidInput(fmt.Sprintf("image exceeds %d bytes", s.opts.MaxImageBytes))
	}
	if err != nil {
		return "", fmt.Errorf("upload review image: %w", err)
	}

	s.logger.InfoContext(ctx, "review image uploaded",
		slog.String("user_id", userID),
		slog.String("key", key),
	)
	return url, nil
}

var errImageTooLarge = errors.New("image too large")

// limitedReader fails once more than remaining bytes were read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errImageTooLarge
	}
	return n, err
}

// ListProductReviews returns a product's reviews, newest first.
func (s *ReviewService) ListProductReviews(ctx context.Context, productID string, page pagination.Params) (pagination.Result[domain.Review], error) {
	if err := requireID("product_id", productID); err != nil {
		return pagination.Result[domain.Review]{}, err
	}
	reviews, err := repository.New(s.store).ProductReviews(ctx, productID)
	if err != nil {
		return pagination.Result[domain.Review]{}, fmt.Errorf("list reviews: %w", err)
	}
	return pagination.Slice(reviews, page), nil
}

// ProductSummary aggregates a product's ratings.
func (s *ReviewService) ProductSummary(ctx context.Context, productID string) (domain.ReviewSummary, error) {
	if err := requireID("product_id", productID); err != nil {
		return domain.ReviewSummary{}, err
	}
	reviews, err := repository.New(s.store).ProductReviews(ctx, productID)
	if err != nil {
		return domain.ReviewSummary{}, fmt.Errorf("summarize reviews: %w", err)
	}
	return domain.Summarize(productID, reviews), nil
}
