package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/pkg/httputil"
	"github.com/utafrali/mobileshop/pkg/pagination"
)

// maxUploadFormBytes bounds a multipart upload request including overhead.
const maxUploadFormBytes = 32 << 20

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// SubmitReviewRequest is the JSON request body for a review.
type SubmitReviewRequest struct {
	Rating int      `json:"rating" validate:"required,min=1,max=5"`
	Body   string   `json:"body"`
	Images []string `json:"images" validate:"omitempty,dive,url"`
}

// Eligibility handles GET /api/v1/orders/{orderID}/products/{productID}/review-eligibility
func (h *ReviewHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.CanReview(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "orderID"), userID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]bool{"can_review": ok})
}

// SubmitReview handles POST /api/v1/orders/{orderID}/products/{productID}/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.SubmitReview(r.Context(), service.SubmitReviewInput{
		ProductID: chi.URLParam(r, "productID"),
		OrderID:   chi.URLParam(r, "orderID"),
		UserID:    userID(r),
		Rating:    req.Rating,
		Body:      req.Body,
		Images:    req.Images,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, result)
}

// UploadImage handles POST /api/v1/reviews/images (multipart field "image").
func (h *ReviewHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFormBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "PAYLOAD_TOO_LARGE", Message: "upload is too large"},
			})
			return
		}
		httputil.WriteBadRequest(w, r, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	url, err := h.service.UploadReviewImage(r.Context(), userID(r), header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, map[string]string{"url": url})
}

// ListProductReviews handles GET /api/v1/products/{productID}/reviews
func (h *ReviewHandler) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListProductReviews(r.Context(), chi.URLParam(r, "productID"), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// ProductSummary handles GET /api/v1/products/{productID}/reviews/summary
func (h *ReviewHandler) ProductSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ProductSummary(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, summary)
}
