package idempotency

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
)

const HeaderKey = "Idempotency-Key"

// ResponseCache is what Middleware needs from a Store.
type ResponseCache interface {
	Reserve(ctx context.Context, key string) (bool, *Response, error)
	Complete(ctx context.Context, key string, resp Response) error
	Forget(ctx context.Context, key string) error
}

// Middleware replays the recorded response of a mutating request repeated
// with the same Idempotency-Key. Requests without the header pass through.
// 5xx responses are not recorded so the client may retry.
func Middleware(log *slog.Logger, cache ResponseCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idem := r.Header.Get(HeaderKey)
			if idem == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			key := "idem:http:" + r.Method + ":" + r.URL.Path + ":" + idem

			fresh, recorded, err := cache.Reserve(r.Context(), key)
			if err != nil {
				log.Error("idempotency reserve failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !fresh {
				if recorded == nil {
					http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
					return
				}
				if recorded.ContentType != "" {
					w.Header().Set("Content-Type", recorded.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(recorded.Status)
				_, _ = w.Write(recorded.Body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= 500 {
				if err := cache.Forget(ctx, key); err != nil {
					log.Error("idempotency release failed", "key", key, "err", err)
				}
				return
			}
			resp := Response{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()}
			if err := cache.Complete(ctx, key, resp); err != nil {
				log.Error("idempotency record failed", "key", key, "err", err)
			}
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
