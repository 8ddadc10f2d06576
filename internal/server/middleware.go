package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/cv-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDMiddleware assigns every API request an ID
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// loggingMiddleware logs HTTP requests and responses. Bodies are never read here.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := getRequestID(r.Context())
		log := s.logger.WithRequestID(requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		log.LogRequest(r.Method, r.URL.Path, r.RemoteAddr, r.ContentLength)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.totalRequests.Add(1)
		log.Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
		)

		s.wsHub.BroadcastRequest(websocket.RequestLogEvent{
			RequestID:    requestID,
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   rw.statusCode,
			ClientIP:     websocket.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Duration:     duration,
			RequestSize:  r.ContentLength,
			ResponseSize: int64(rw.size),
		})
	})
}

// rateLimitMiddleware rejects clients that exhausted their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := websocket.ClientIP(r)
		if !s.limiter.Allow(ip) {
			wait := s.limiter.RetryAfter(ip)
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Rate limit exceeded", zap.String("client_ip", ip))
			writeJSONError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimitMiddleware caps request bodies at server.max_upload_bytes
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit := s.config.Server.MaxUploadBytes; limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
