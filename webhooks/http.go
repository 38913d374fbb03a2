package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goliatone/go-catalog-sync/core"
)

// MaxBodyBytes caps the size of one delivery body.
const MaxBodyBytes = 5 << 20

type receiver interface {
	Receive(ctx context.Context, req InboundRequest) (ReceiveResult, error)
}

// NewHTTPHandler exposes a receiver over HTTP. Accepted deliveries, new or
// duplicate, answer 200 "ok".
func NewHTTPHandler(r receiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "unable to read body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(req.Header))
		for name := range req.Header {
			headers[name] = req.Header.Get(name)
		}

		if _, err := r.Receive(req.Context(), InboundRequest{Headers: headers, Body: body}); err != nil {
			status := core.HTTPStatus(err)
			http.Error(w, core.TextCode(err), status)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
