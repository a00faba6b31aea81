package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/krobus00/order-trigger-service/internal/config"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/service/position"
	"github.com/krobus00/order-trigger-service/internal/service/trigger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type CreateOrderRequest struct {
	UserID       int64           `json:"user_id"`
	Type         string          `json:"type"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

type OrderResponse struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	Type         string `json:"type"`
	TriggerPrice string `json:"trigger_price"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

type ExecuteOrderRequest struct {
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

type CancelOrderRequest struct {
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

type CheckOrderRequest struct {
	UserID       int64           `json:"user_id"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

type Handler struct {
	triggerService *trigger.Service
}

func NewOrderHTTPHandler(triggerService *trigger.Service) *Handler {
	return &Handler{triggerService: triggerService}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/orders", h.Orders)
	mux.HandleFunc("/api/v1/orders/execute", h.ExecuteOrder)
	mux.HandleFunc("/api/v1/orders/cancel", h.CancelOrder)
	mux.HandleFunc("/api/v1/orders/check", h.CheckOrder)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createOrder(w, r)
	case http.MethodGet:
		h.listOrders(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	order, err := h.triggerService.CreateOrder(r.Context(), req.UserID, entity.OrderKind(strings.TrimSpace(req.Type)), req.TriggerPrice)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("user_id")), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id query parameter is required"})
		return
	}

	orders, err := h.triggerService.ListOrders(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, mapOrderToResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	outcome, err := h.triggerService.ExecuteOrder(r.Context(), req.OrderID, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": string(outcome)})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	if err := validateAPIKey(r.Header.Get("X-API-Key")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	order, err := h.triggerService.CancelOrder(r.Context(), req.OrderID, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) CheckOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var req CheckOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	met, err := h.triggerService.CheckOrder(r.Context(), req.UserID, req.TriggerPrice)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if met {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Trigger price met, execute stop loss"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Price below trigger, waiting..."})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trigger.ErrInvalidUserID),
		errors.Is(err, trigger.ErrInvalidOrderKind),
		errors.Is(err, trigger.ErrInvalidTriggerPrice):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, trigger.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
	case errors.Is(err, position.ErrPositionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "position not found"})
	case errors.Is(err, trigger.ErrNotOrderOwner):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "unauthorized to act on this order"})
	case errors.Is(err, trigger.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "order is no longer active"})
	default:
		logrus.Error(err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func mapOrderToResponse(order *entity.Order) OrderResponse {
	return OrderResponse{
		ID:           order.ID,
		UserID:       order.UserID,
		Type:         string(order.Kind),
		TriggerPrice: order.TriggerPrice.String(),
		Status:       string(order.Status),
		CreatedAt:    order.CreatedAt.UnixMilli(),
		UpdatedAt:    order.UpdatedAt.UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func validateAPIKey(rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	if config.Env == nil || len(config.Env.APIKeys) == 0 {
		return errAPIKeyInvalid
	}

	now := time.Now().UTC()
	for _, candidate := range config.Env.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
