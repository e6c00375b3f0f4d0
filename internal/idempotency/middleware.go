package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/skillpath/backend/libs/apperr"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/handlers"
	"go.uber.org/zap"
)

const (
	// HeaderKey carries the client-chosen deduplication token
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed is set on responses served from the ledger
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Middleware deduplicates requests carrying an Idempotency-Key header.
// It must run after authentication and the role gate; requests without the header pass through.
// The request that holds the reservation runs under Ledger.ExecutionTimeout.
func Middleware(ledger *Ledger, logger *zap.Logger) func(http.Handler) http.Handler {
	base := handlers.BaseHandler{Logger: logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !validKey(key) {
				base.RespondError(w, apperr.ValidationFailed, "Idempotency-Key must be 1-255 printable ASCII characters")
				return
			}

			actorID, ok := middleware.GetUserID(r.Context())
			if !ok {
				base.RespondError(w, apperr.Unauthenticated, "authentication required")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				base.RespondError(w, apperr.ValidationFailed, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			decision, err := ledger.Begin(r.Context(), actorID, key, Fingerprint(r.Method, r.URL.Path, body))
			if err != nil {
				base.RespondAppError(w, err)
				return
			}

			if decision.Outcome == Replay {
				writeReplay(w, decision.Record.StatusCode, decision.Record.ContentType, decision.Record.Body)
				return
			}

			reqCtx := r.Context()
			ctx, cancel := context.WithTimeout(reqCtx, ledger.ExecutionTimeout())
			defer cancel()

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					if err := ledger.Release(reqCtx, decision.Record); err != nil {
						logger.Error("failed to release idempotency key", zap.Error(err))
					}
					panic(p)
				}
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))

			if ShouldCommit(rec.status) {
				if err := ledger.Commit(reqCtx, decision.Record, rec.status, rec.Header().Get("Content-Type"), rec.body.Bytes()); err != nil {
					logger.Error("failed to commit idempotent response",
						zap.Int("actor_id", actorID),
						zap.String("key", key),
						zap.Error(err),
					)
				}
				return
			}

			if err := ledger.Release(reqCtx, decision.Record); err != nil {
				logger.Error("failed to release idempotency key",
					zap.Int("actor_id", actorID),
					zap.String("key", key),
					zap.Error(err),
				)
			}
		})
	}
}

func writeReplay(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func validKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

// recorder passes the response through while keeping a copy of it for the ledger
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
