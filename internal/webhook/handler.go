package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20 // 1 MiB

// DispatchFunc is invoked asynchronously for every supported, normalized
// event.
type DispatchFunc func(e Event)

// Deduper reports whether a delivery ID has already been processed,
// recording it if not. Implementations must be safe for concurrent use.
type Deduper interface {
	SeenBefore(deliveryID string) (bool, error)
}

// NewHandler returns an http.HandlerFunc that parses, normalizes, and
// asynchronously dispatches GitHub issue webhooks. It acknowledges within
// the HTTP round trip and never blocks on orchestration.
func NewHandler(logger *zap.Logger, dedup Deduper, dispatch DispatchFunc) http.HandlerFunc {
	logger = logger.With(zap.String("component", "webhook-handler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			logger.Error("reading webhook body", zap.Error(err))
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Error("parsing webhook payload", zap.Error(err))
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)

		if !payload.Supported() {
			logger.Debug("ignoring unsupported webhook action", zap.String("action", payload.Action))
			return
		}

		deliveryID := r.Header.Get("X-GitHub-Delivery")
		if deliveryID == "" {
			// Deliveries always carry this header in production; a
			// synthetic ID keeps every request traceable in logs without
			// being fed back into the dedup check, since a freshly
			// generated ID can never collide with a real redelivery.
			deliveryID = uuid.NewString()
		} else if dedup != nil {
			seen, err := dedup.SeenBefore(deliveryID)
			if err != nil {
				logger.Warn("delivery dedup check failed, proceeding anyway", zap.Error(err))
			} else if seen {
				logger.Info("dropping redelivered webhook", zap.String("delivery_id", deliveryID))
				return
			}
		}

		event := payload.Normalize()
		logger.Debug("dispatching webhook event", zap.String("delivery_id", deliveryID), zap.String("action", event.Action))
		go dispatch(event)
	}
}
