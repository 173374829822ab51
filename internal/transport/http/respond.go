package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

var (
	errMissingIdentity = errors.New("caller identity is required")
	errNotOwner        = errors.New("order belongs to another owner")
)

// newValidator настраивает validator так, чтобы decimal сравнивался как число.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func respondWithError(w http.ResponseWriter, logger *log.Entry, code int, message string) {
	respondWithJSON(w, logger, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, logger *log.Entry, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Error("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		logger.WithError(err).Warn("failed to write JSON response")
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "min", "gte":
			details[fe.Field()] = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
		case "max", "lte":
			if fe.Kind() == reflect.String {
				details[fe.Field()] = fmt.Sprintf("must be at most %s characters", fe.Param())
			} else {
				details[fe.Field()] = fmt.Sprintf("must be less than or equal to %s", fe.Param())
			}
		default:
			details[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return details
}

// priceDetails дополняет ошибки validator проверкой масштаба цены: decimal
// сравнивается тегами как float64 и лишние знаки там не видны.
func priceDetails(price *decimal.Decimal) map[string]string {
	if price == nil {
		return nil
	}
	if err := domain.ValidateUnitPrice(*price); errors.Is(err, domain.ErrUnitPriceScale) {
		return map[string]string{"price": fmt.Sprintf("must have at most %d decimal places", domain.UnitPriceScale)}
	}
	return nil
}

// statusDetails описывает неизвестный статус вместе со списком допустимых.
func statusDetails(err error) map[string]string {
	names := make([]string, 0, len(domain.Statuses()))
	for _, status := range domain.Statuses() {
		if status != domain.OrderStatusDeleted {
			names = append(names, string(status))
		}
	}
	return map[string]string{"status": fmt.Sprintf("%s; allowed: %s", err, strings.Join(names, ", "))}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, errMissingIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, errNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderAlreadyExists), domain.IsVersionConflict(err):
		return http.StatusConflict
	case domain.IsInvalidStatus(err):
		return http.StatusUnprocessableEntity
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithDomainError пишет ответ для ошибки движка. Текст внутренних
// ошибок наружу не отдаётся.
func respondWithDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		logger.WithError(err).Error("order request failed")
		respondWithError(w, logger, code, "internal server error")
		return
	}
	respondWithError(w, logger, code, err.Error())
}
