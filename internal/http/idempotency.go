package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"slotledger/internal/cache"
	"slotledger/internal/log"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay is set on responses served from the store.
	HeaderIdempotentReplay = "Idempotent-Replayed"
	maxIdempotencyKeyLen   = 255
)

// storedResponse is a completed response kept for replay.
type storedResponse struct {
	status   int
	header   http.Header
	body     []byte
	bodyHash [sha256.Size]byte
}

// idempotency replays the stored response of a mutating request whose
// Idempotency-Key was already seen. Concurrent requests with the same key
// execute once and share the result.
type idempotency struct {
	responses *cache.LRUCache[storedResponse]
	inflight  singleflight.Group
}

func newIdempotency(responses *cache.LRUCache[storedResponse]) *idempotency {
	return &idempotency{responses: responses}
}

func (i *idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			BadRequestError("Idempotency-Key too long").Write(w)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			BadRequestError("request body too large or unreadable").Write(w)
			return
		}
		hash := sha256.Sum256(body)
		storeKey := r.Method + " " + r.URL.Path + "\x00" + key

		if stored, ok := i.responses.Get(storeKey); ok {
			replay(w, stored, hash, true)
			return
		}

		v, _, shared := i.inflight.Do(storeKey, func() (any, error) {
			if stored, ok := i.responses.Get(storeKey); ok {
				return stored, nil
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			buf := newBufferedResponse()
			next.ServeHTTP(buf, r)
			stored := storedResponse{
				status:   buf.status,
				header:   buf.header.Clone(),
				body:     buf.body.Bytes(),
				bodyHash: hash,
			}
			if replayable(stored) {
				i.responses.Set(storeKey, stored)
			}
			return stored, nil
		})
		stored := v.(storedResponse)
		if shared {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Idempotent request shared an in-flight execution",
				log.FieldPath, r.URL.Path)
		}
		replay(w, stored, hash, shared)
	})
}

// replayable reports whether a response may answer later requests with the
// same key. Server failures and lock contention are transient, so the next
// attempt runs the operation again.
func replayable(stored storedResponse) bool {
	if stored.status >= http.StatusInternalServerError {
		return false
	}
	if stored.status == http.StatusConflict {
		var body errorBody
		if json.Unmarshal(stored.body, &body) == nil && body.Error == CodeConcurrentModification {
			return false
		}
	}
	return true
}

func replay(w http.ResponseWriter, stored storedResponse, hash [sha256.Size]byte, replayed bool) {
	if stored.bodyHash != hash {
		ErrorResponse(http.StatusUnprocessableEntity, CodeIdempotencyKeyReused,
			"Idempotency-Key was already used with a different request body").Write(w)
		return
	}
	for name, values := range stored.header {
		w.Header()[name] = values
	}
	if replayed {
		w.Header().Set(HeaderIdempotentReplay, "true")
	}
	w.WriteHeader(stored.status)
	_, _ = w.Write(stored.body)
}

// bufferedResponse captures a handler's response in memory.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if !b.wroteHeader {
		b.status = code
		b.wroteHeader = true
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}
