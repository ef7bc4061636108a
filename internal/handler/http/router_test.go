package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/blob"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/internal/store/memory"
	"github.com/utafrali/mobileshop/pkg/health"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
	"github.com/utafrali/mobileshop/pkg/middleware"
)

// --- Test helpers ---

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })
	producer := event.NewProducer(pkgkafka.NopPublisher{}, logger)
	blobs := blob.NewMemoryStorage("http://shop.test/blobs")

	return NewRouter(RouterConfig{
		Cart:     service.NewCartService(st, producer, logger),
		Ledger:   service.NewLedgerService(st, producer, logger),
		Orders:   service.NewOrderService(st, producer, logger, service.OrderOptions{}),
		Reviews:  service.NewReviewService(st, blobs, producer, logger, service.DefaultReviewOptions()),
		Profiles: service.NewProfileService(st, logger),
		Store:    st,
		Health:   health.NewHandler(),
		Auth:     middleware.AuthConfig{TrustHeaders: true},
		CORS:     middleware.DefaultCORSConfig(),
		Blobs:    blobs,
		Logger:   logger,
	})
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, user, role string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

type orderJSON struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	Version     int64  `json:"version"`
	TotalAmount int64  `json:"total_amount"`
	Cancelable  bool   `json:"cancelable"`
}

func placeOrder(t *testing.T, h http.Handler, user string) orderJSON {
	t.Helper()

	rec, _ := do(t, h, http.MethodPost, "/api/v1/cart/items", user, "",
		map[string]any{"product_id": "p1", "name": "Phone", "price": 1000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := do(t, h, http.MethodPost, "/api/v1/orders", user, "",
		map[string]any{"line_ids": []string{"p1"}, "shipping_address": "12 Nguyen Hue"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[orderJSON](t, resp)
}

// --- Tests ---

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RequiresIdentity(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestAPI_PublicReviewReads(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/products/p1/reviews", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/products/p1/reviews/summary", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	summary := decodeData[map[string]any](t, resp)
	assert.EqualValues(t, 0, summary["total_count"])
}

func TestCart_Flow(t *testing.T) {
	h := newTestRouter(t)

	for range 2 {
		rec, _ := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", "",
			map[string]any{"product_id": "p1", "name": "Phone", "price": 500})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := do(t, h, http.MethodPost, "/api/v1/cart/items/p1/toggle", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	line := decodeData[map[string]any](t, resp)
	assert.Equal(t, true, line["selected"])

	rec, _ = do(t, h, http.MethodPut, "/api/v1/cart/items/p1", "u1", "", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/v1/cart", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[map[string]any](t, resp)
	assert.EqualValues(t, 1500, cart["selected_total"])

	rec, _ = do(t, h, http.MethodPut, "/api/v1/cart/items/p1/selection", "u1", "", map[string]any{"selected": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/cart/items/p1", "u1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, resp = do(t, h, http.MethodPut, "/api/v1/cart/items/p1", "u1", "", map[string]any{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestCart_ValidationErrors(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodPost, "/api/v1/cart/items", "u1", "", map[string]any{"price": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "product_id")

	rec, resp = do(t, h, http.MethodPut, "/api/v1/cart/items/p1/selection", "u1", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_INPUT")
}

func TestAPI_RejectsUnsupportedContentType(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("product_id=p1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestOrders_CreateListAndCancel(t *testing.T) {
	h := newTestRouter(t)
	order := placeOrder(t, h, "u1")

	assert.Equal(t, "processing", order.Status)
	assert.Equal(t, "Đang xử lý", order.StatusLabel)
	assert.True(t, order.Cancelable)
	assert.EqualValues(t, 1000, order.TotalAmount)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/orders?group=processing", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []orderJSON `json:"data"`
		TotalCount int         `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Nil(t, resp.Error)
	require.Len(t, page.Data, 1)
	assert.Equal(t, order.ID, page.Data[0].ID)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/orders?status=bogus", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/orders/"+order.ID, "u2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", "u1", "", map[string]any{"version": order.Version + 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", resp.Error.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canceled := decodeData[orderJSON](t, resp)
	assert.Equal(t, "canceled", canceled.Status)
	assert.False(t, canceled.Cancelable)

	rec, resp = do(t, h, http.MethodGet, "/api/v1/orders/groups", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeData[[]map[string]any](t, resp)
	for _, g := range groups {
		if g["group"] == "canceled" {
			assert.EqualValues(t, 1, g["count"])
		}
	}
}

func TestOrders_EmptySelection(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodPost, "/api/v1/orders", "u1", "", map[string]any{"shipping_address": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EMPTY_SELECTION", resp.Error.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/admin/orders", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestAdmin_LifecycleAndReview(t *testing.T) {
	h := newTestRouter(t)
	order := placeOrder(t, h, "u1")

	rec, resp := do(t, h, http.MethodGet, "/api/v1/admin/orders?group=new", "boss", middleware.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resp.Error)

	rec, resp = do(t, h, http.MethodPost, "/api/v1/admin/orders/"+order.ID+"/status", "boss", middleware.RoleAdmin,
		map[string]any{"status": "shipping", "version": order.Version})
	require.Equal(t, http.StatusOK, rec.Code)
	shipped := decodeData[orderJSON](t, resp)
	assert.Equal(t, "Đang giao hàng", shipped.StatusLabel)
	assert.True(t, shipped.Cancelable)

	rec, resp = do(t, h, http.MethodPost, "/api/v1/admin/orders/"+order.ID+"/status", "boss", middleware.RoleAdmin,
		map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/v1/orders/"+order.ID+"/products/p1/review-eligibility", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"can_review": false}, decodeData[map[string]bool](t, resp))

	rec, _ = do(t, h, http.MethodPost, "/api/v1/admin/orders/"+order.ID+"/status", "boss", middleware.RoleAdmin,
		map[string]any{"status": "delivered"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/products/p1/reviews", "u1", "",
		map[string]any{"rating": 5, "body": "Excellent phone, fast delivery"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeData[map[string]any](t, resp)
	assert.EqualValues(t, 1000, result["points_awarded"])

	rec, resp = do(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/products/p1/reviews", "u1", "",
		map[string]any{"rating": 4, "body": "Second thoughts on this"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/v1/points", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1000, decodeData[map[string]any](t, resp)["balance"])

	rec, resp = do(t, h, http.MethodPost, "/api/v1/admin/orders/"+order.ID+"/cancel", "boss", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NOT_CANCELABLE", resp.Error.Code)
}

func TestAdmin_CreditPoints(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodPost, "/api/v1/admin/users/u9/points", "boss", middleware.RoleAdmin,
		map[string]any{"amount": 250, "reason": "apology"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 250, decodeData[map[string]any](t, resp)["balance"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/admin/users/u9/points", "boss", middleware.RoleAdmin,
		map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile_PatchAndGet(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodPatch, "/api/v1/profile", "u1", "",
		map[string]any{"name": "Lan", "email": "lan@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/profile", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeData[map[string]string](t, resp)
	assert.Equal(t, "Lan", profile["name"])
	assert.Equal(t, "lan@example.com", profile["email"])

	rec, resp = do(t, h, http.MethodPatch, "/api/v1/profile", "u1", "", map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestReviewImageUploadAndServe(t *testing.T) {
	h := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="image"; filename="shot.jpg"`},
		"Content-Type":        {"image/jpeg"},
	})
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	url := decodeData[map[string]string](t, resp)["url"]
	require.True(t, strings.HasPrefix(url, "http://shop.test/blobs/reviews/u1/"), url)

	rec, _ = do(t, h, http.MethodGet, strings.TrimPrefix(url, "http://shop.test"), "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
}

func TestReviewImageUpload_MissingField(t *testing.T) {
	h := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("caption", "hi"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatch_UnknownTopic(t *testing.T) {
	h := newTestRouter(t)

	rec, resp := do(t, h, http.MethodGet, "/api/v1/watch?topic=wishlist", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestWatch_StreamsCartChanges(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	header := http.Header{}
	header.Set(middleware.HeaderUserID, "u1")
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/watch?topic=cart", header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	messages := make(chan WatchMessage, 16)
	go func() {
		for {
			var msg WatchMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(messages)
				return
			}
			messages <- msg
		}
	}()

	addItem := func() {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/cart/items",
			strings.NewReader(`{"product_id":"p1","name":"Phone","price":100}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderUserID, "u1")
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
	}

	// The subscription is registered right after the upgrade completes, so
	// keep mutating until the first change arrives.
	deadline := time.After(3 * time.Second)
	for {
		addItem()
		select {
		case msg, ok := <-messages:
			require.True(t, ok, "websocket closed")
			assert.Equal(t, TopicCart, msg.Topic)
			assert.Equal(t, "users/u1/cart/p1", msg.Path)
			assert.NotEmpty(t, msg.Value)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change received")
		}
	}
}

func TestWatch_AdminOnly(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/admin/watch", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
