// Package http публикует движок заказов через REST API на chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/lifecycle"
)

// OrderService: операции движка, которые использует API.
type OrderService interface {
	Create(ctx context.Context, ownerID string, req lifecycle.CreateOrderRequest) (domain.OrderView, error)
	GetPage(ctx context.Context, req domain.PageRequest) (domain.Page, error)
	GetByOrderID(ctx context.Context, orderID string) (domain.OrderView, error)
	Owner(ctx context.Context, orderID string) (string, error)
	Update(ctx context.Context, orderID string, req lifecycle.UpdateOrderRequest) (domain.OrderView, error)
	SoftDelete(ctx context.Context, orderID string) error
}

// OrderHandler обслуживает /api/orders.
type OrderHandler struct {
	service        OrderService
	validate       *validator.Validate
	identityHeader string
	logger         *log.Entry
}

// Option настраивает OrderHandler.
type Option func(*OrderHandler)

// WithIdentityHeader меняет заголовок с идентификатором вызывающего.
func WithIdentityHeader(header string) Option {
	return func(h *OrderHandler) {
		if header != "" {
			h.identityHeader = header
		}
	}
}

// WithLogger подменяет логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *OrderHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewOrderHandler(service OrderService, opts ...Option) *OrderHandler {
	h := &OrderHandler{
		service:        service,
		validate:       newValidator(),
		identityHeader: DefaultIdentityHeader,
		logger:         log.WithField("component", "http-api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes возвращает роутер API вместе с общими middleware.
func (h *OrderHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(Identity(h.identityHeader, h.logger))
		h.RegisterRoutes(r)
	})
	return r
}

// RegisterRoutes монтирует обработчики на роутер, уже защищённый Identity.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/", h.handleCreate)
	router.Get("/", h.handleList)
	router.Get("/{orderID}", h.handleGet)
	router.Put("/{orderID}", h.handleUpdate)
	router.Delete("/{orderID}", h.handleDelete)
}

func (h *OrderHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var payload CreateOrderRequest
	if !h.decode(w, r, &payload) || !h.checkPrice(w, payload.Price) {
		return
	}

	view, err := h.service.Create(r.Context(), caller, lifecycle.CreateOrderRequest{
		ExternalOrderID: payload.OrderID,
		Product:         payload.Product,
		Quantity:        payload.Quantity,
		UnitPrice:       *payload.Price,
		TTLSeconds:      payload.TTL,
	})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated, view)
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "invalid page parameter")
		return
	}
	size, err := queryInt(r, "size", domain.DefaultPageSize)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "invalid size parameter")
		return
	}

	result, err := h.service.GetPage(r.Context(), domain.PageRequest{Page: page, Size: size})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, result)
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	caller, _ := CallerFromContext(r.Context())

	view, err := h.service.GetByOrderID(r.Context(), orderID)
	if err == nil && view.OwnerID != caller {
		err = errNotOwner
	}
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, view)
}

func (h *OrderHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var payload UpdateOrderRequest
	if !h.decode(w, r, &payload) || !h.checkPrice(w, payload.Price) {
		return
	}
	status, err := domain.ParseOrderStatus(payload.Status)
	if err != nil {
		respondWithJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: statusDetails(err),
		})
		return
	}
	if err := h.authorize(r, orderID); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	view, err := h.service.Update(r.Context(), orderID, lifecycle.UpdateOrderRequest{
		Product:         payload.Product,
		Quantity:        payload.Quantity,
		UnitPrice:       *payload.Price,
		Status:          status,
		ExpectedVersion: payload.ExpectedVersion,
	})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, view)
}

func (h *OrderHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.authorize(r, orderID); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	if err := h.service.SoftDelete(r.Context(), orderID); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{
		"order_id": orderID,
		"status":   string(domain.OrderStatusDeleted),
	})
}

// authorize пропускает только владельца заказа.
func (h *OrderHandler) authorize(r *http.Request, orderID string) error {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		return errMissingIdentity
	}
	owner, err := h.service.Owner(r.Context(), orderID)
	if err != nil {
		return err
	}
	if owner != caller {
		return errNotOwner
	}
	return nil
}

// decode разбирает и валидирует тело запроса; при ошибке ответ уже записан.
func (h *OrderHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.logger.WithError(err).Debug("failed to decode request body")
		respondWithError(w, h.logger, http.StatusBadRequest, "invalid request payload")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{
				Error:   "validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return false
		}
		h.logger.WithError(err).Error("unexpected error during validation")
		respondWithError(w, h.logger, http.StatusInternalServerError, "internal validation error")
		return false
	}
	return true
}

func (h *OrderHandler) checkPrice(w http.ResponseWriter, price *decimal.Decimal) bool {
	details := priceDetails(price)
	if details == nil {
		return true
	}
	respondWithJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: details})
	return false
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New("invalid integer")
	}
	return value, nil
}
