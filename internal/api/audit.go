package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxAuditBodyBytes = 1024
)

// auditedActions maps write paths to the action name recorded in the log.
var auditedActions = map[string]string{
	"/v1/tip":      "tip",
	"/v1/withdraw": "withdraw",
	"/v1/deploy":   "deploy",
	"/v1/refresh":  "refresh",
}

// AuditMiddleware records one log line per write request. Tip bodies are
// logged field by field; anything unparseable is kept as a clipped excerpt.
func AuditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := logger.With("component", "api_audit")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		attrs := []any{
			"request_id", requestID,
			"action", auditAction(r.URL.Path),
			"path", r.URL.Path,
			"client_ip", extractClientIP(r),
		}
		attrs = append(attrs, peekBody(r)...)

		rec := &recordingWriter{ResponseWriter: w}
		began := time.Now()
		next.ServeHTTP(rec, r)

		attrs = append(attrs,
			"response_status", rec.status(),
			"response_bytes", rec.bytes,
			"duration_ms", time.Since(began).Milliseconds(),
		)
		auditLogger.Info("api audit", attrs...)
	})
}

func auditAction(path string) string {
	if name, ok := auditedActions[path]; ok {
		return name
	}
	return "other"
}

// peekBody reads up to maxAuditBodyBytes and puts them back in front of the
// unread remainder so the handler sees the full body.
func peekBody(r *http.Request) []any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBodyBytes+1))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))
	if err != nil || len(head) == 0 {
		return nil
	}

	if len(head) <= maxAuditBodyBytes {
		var tip tipRequest
		if json.Unmarshal(head, &tip) == nil {
			return tipAttrs(tip)
		}
		return []any{"body_excerpt", string(head)}
	}
	return []any{"body_excerpt", string(head[:maxAuditBodyBytes]) + "...(truncated)"}
}

// tipAttrs logs the amount and nickname; the message is user text, so only
// its length goes in.
func tipAttrs(t tipRequest) []any {
	var attrs []any
	if t.AmountWei != "" {
		attrs = append(attrs, "amount_wei", t.AmountWei)
	}
	if t.AmountEth != "" {
		attrs = append(attrs, "amount_eth", t.AmountEth)
	}
	if nick := strings.TrimSpace(t.Nickname); nick != "" {
		attrs = append(attrs, "nickname", nick)
	}
	if t.Message != "" {
		attrs = append(attrs, "message_len", len(t.Message))
	}
	return attrs
}

// recordingWriter captures the status and size of the response.
type recordingWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.code == 0 {
		rw.code = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.code == 0 {
		rw.code = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *recordingWriter) status() int {
	if rw.code == 0 {
		return http.StatusOK
	}
	return rw.code
}
