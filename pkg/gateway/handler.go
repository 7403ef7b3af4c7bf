package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/source"
	"mercator-hq/sluice/pkg/telemetry/logging"
	"mercator-hq/sluice/pkg/telemetry/metrics"
	"mercator-hq/sluice/pkg/transaction"
)

// TransactionIDHeader returns the transaction ID to the caller.
const TransactionIDHeader = "X-Transaction-ID"

// ChatCompletionsPath is the proxied endpoint.
const ChatCompletionsPath = "/v1/chat/completions"

// hopHeaders are not forwarded to the backend. Authorization travels as the
// transaction credential instead.
var hopHeaders = map[string]bool{
	"Authorization":       true,
	"Connection":          true,
	"Content-Length":      true,
	"Accept-Encoding":     true,
	"Host":                true,
	"Keep-Alive":          true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ChatConfig configures a ChatHandler.
type ChatConfig struct {
	// Source supplies the root policy for each call.
	Source source.Source

	// Env carries the pipeline's collaborators. It is copied per call.
	Env control.Env

	// Metrics records per-request metrics. Optional.
	Metrics *metrics.Collector

	// MaxBodyBytes bounds the request body. Zero means unlimited.
	MaxBodyBytes int64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ChatHandler serves chat-completion calls by running them through the
// root policy. The policy decides authentication, rewriting and dispatch;
// the handler only decodes the call and encodes the outcome.
type ChatHandler struct {
	source  source.Source
	env     control.Env
	metrics *metrics.Collector
	maxBody int64
	logger  *slog.Logger
}

// NewChatHandler creates a handler.
func NewChatHandler(cfg ChatConfig) *ChatHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	env := cfg.Env
	if env.Logger == nil {
		env.Logger = logger
	}
	return &ChatHandler{
		source:  cfg.Source,
		env:     env,
		metrics: cfg.Metrics,
		maxBody: cfg.MaxBodyBytes,
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.metrics != nil {
		defer h.metrics.TrackInFlight()()
	}

	status, kind, model := h.serve(w, r)

	if h.metrics != nil {
		h.metrics.RecordRequest(model, status, kind, time.Since(start))
	}
}

// serve handles one call and returns what was reported for metrics.
func (h *ChatHandler) serve(w http.ResponseWriter, r *http.Request) (status int, kind, model string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed,
			newError("Only POST is supported.", ErrorTypeInvalidRequest, CodeMethodNotAllowed))
		return http.StatusMethodNotAllowed, "", ""
	}

	payload, errResp, status := h.decode(w, r)
	if errResp != nil {
		writeError(w, status, errResp)
		return status, "", ""
	}
	model, _ = payload["model"].(string)

	root := h.source.Current()
	if root == nil {
		writeError(w, http.StatusServiceUnavailable,
			newError("No policy is loaded.", ErrorTypeServiceUnavailable, CodeNoPolicy))
		return http.StatusServiceUnavailable, "", model
	}

	t := transaction.New(&transaction.Request{
		Method:     r.Method,
		Endpoint:   r.URL.Path,
		Credential: bearerToken(r.Header.Get("Authorization")),
		Headers:    forwardHeaders(r.Header),
		Payload:    payload,
	})
	w.Header().Set(TransactionIDHeader, t.ID)

	env := h.env
	result, err := control.Apply(r.Context(), root, t, &env)
	if err != nil {
		status, errResp := errorFor(err)
		if status != statusClientClosedRequest {
			writeError(w, status, errResp)
		}
		return status, errorKind(err), model
	}

	if result.Response == nil {
		err := &control.ConfigurationError{Policy: root.Name(), Message: "pipeline completed without a backend response"}
		h.logger.ErrorContext(logging.WithTransactionID(r.Context(), t.ID), "call not dispatched",
			"error", err,
		)
		status, errResp := errorFor(err)
		writeError(w, status, errResp)
		return status, errorKind(err), model
	}

	status = http.StatusOK
	if v, ok := result.Data.Get(transaction.KeyBackendStatus); ok {
		if n, ok := v.Num(); ok && n >= 200 && n < 300 {
			status = int(n)
		}
	}
	writeJSON(w, status, result.Response.Payload)

	h.logger.DebugContext(logging.WithTransactionID(r.Context(), t.ID), "call completed",
		"model", model,
		"status", status,
	)
	return status, "", model
}

// decode reads the JSON body. On failure it returns the error to write.
func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, *ErrorResponse, int) {
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, newError("Request body is too large.", ErrorTypeInvalidRequest, CodeRequestTooLarge),
				http.StatusRequestEntityTooLarge
		}
		return nil, newError("Failed to read request body.", ErrorTypeInvalidRequest, CodeInvalidJSON),
			http.StatusBadRequest
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return nil, newError("Request body must be a JSON object.", ErrorTypeInvalidRequest, CodeInvalidJSON),
			http.StatusBadRequest
	}
	return payload, nil, 0
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// forwardHeaders flattens the request headers, dropping hop-by-hop ones.
func forwardHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if hopHeaders[http.CanonicalHeaderKey(name)] || len(values) == 0 {
			continue
		}
		out[name] = values[0]
	}
	return out
}
