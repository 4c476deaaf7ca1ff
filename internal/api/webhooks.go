package api

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/nerrad567/facility-core/internal/ingest"
)

// webhookSecretHeader carries the shared secret of webhook producers.
const webhookSecretHeader = "X-Webhook-Secret"

// webhookSecretMiddleware rejects webhook calls without the configured
// secret. With no secret configured the endpoints are open.
func (s *Server) webhookSecretMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.webhook.Secret != "" {
			got := r.Header.Get(webhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhook.Secret)) != 1 {
				writeUnauthorized(w, "invalid webhook secret")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebhookReadings ingests one reading or an array of them. Unknown
// devices are skipped and counted in the response.
func (s *Server) handleWebhookReadings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}
	readings, err := ingest.DecodeReadings(body)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	res, err := ingest.Batch(r.Context(), s.ingester, readings, s.logger, "webhook")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleWebhookRaw logs whatever the producer sent.
func (s *Server) handleWebhookRaw(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}
	s.logger.Info("raw webhook events received",
		"content_type", r.Header.Get("Content-Type"),
		"bytes", len(body),
		"body", string(body),
		"request_id", requestID(r),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
