package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// DefaultIdentityHeader выставляется шлюзом аутентификации перед сервисом.
const DefaultIdentityHeader = "X-User-ID"

const maskedValue = "***"

var sensitiveHeaders = []string{"Authorization", "Password", "Token"}

type callerKey struct{}

// CallerFromContext возвращает идентификатор вызывающего, установленный Identity.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}

// Identity читает идентификатор вызывающего из доверенного заголовка.
// Запросы без заголовка отклоняются с 401.
func Identity(header string, logger *log.Entry) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := strings.TrimSpace(r.Header.Get(header))
			if caller == "" {
				respondWithError(w, logger, http.StatusUnauthorized, errMissingIdentity.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}

// RequestLogger пишет строку лога на каждый запрос. Значения чувствительных
// заголовков заменяются маской.
func RequestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"took":       time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
				"headers":    maskHeaders(r.Header),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request served with error")
				return
			}
			entry.Debug("http request served")
		})
	}
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		value := strings.Join(values, ",")
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				value = maskedValue
				break
			}
		}
		out[name] = value
	}
	return out
}
