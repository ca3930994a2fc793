package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/cache"
)

type errorBody struct {
	Error        string `json:"error"`
	Code         int    `json:"code"`
	DailyLimit   bool   `json:"dailyLimit,omitempty"`
	BillingError bool   `json:"billingError,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: status})
}

// writeError maps err onto a status code and JSON error body.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	switch {
	case errors.Is(err, imagegate.ErrDailyLimitReached):
		body.Code = http.StatusTooManyRequests
		body.Error = "Daily generation limit reached. Please try again tomorrow."
		body.DailyLimit = true
	case errors.Is(err, imagegate.ErrBillingLimit):
		body.Code = http.StatusTooManyRequests
		body.Error = "Image API billing limit reached. Please try again later."
		body.BillingError = true
	case errors.Is(err, imagegate.ErrRateLimited):
		body.Code = http.StatusTooManyRequests
	case errors.Is(err, imagegate.ErrWaitTimeout):
		body.Code = http.StatusServiceUnavailable
	case errors.Is(err, imagegate.ErrInvalidRequest),
		errors.Is(err, cache.ErrInvalidURL):
		body.Code = http.StatusBadRequest
	case errors.Is(err, imagegate.ErrNotConfigured),
		errors.Is(err, imagegate.ErrAuthFailed):
		body.Code = http.StatusInternalServerError
	case errors.Is(err, cache.ErrNotFound):
		body.Code = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		body.Code = http.StatusServiceUnavailable
	default:
		body.Code = http.StatusBadGateway
	}
	writeJSON(w, body.Code, body)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("imagegate/server: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
