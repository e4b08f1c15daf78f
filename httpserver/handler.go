package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/ruteri/dice-l0/api"
	"github.com/ruteri/dice-l0/certencoder"
	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/metrics"
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

// Handler processes verifier requests.
type Handler struct {
	log         *slog.Logger
	metrics     *metrics.MetricsServer
	maxBodySize int64
}

// NewHandler creates a verifier request handler. m may be nil.
func NewHandler(log *slog.Logger, m *metrics.MetricsServer, maxBodySize int64) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = api.DefaultMaxBodySize
	}
	return &Handler{
		log:         log,
		metrics:     m,
		maxBodySize: maxBodySize,
	}
}

// HandleVerify verifies a DeviceID CSR and AliasKey certificate pair.
//
// URL format: POST /api/l0/verify
// Request body: api.VerifyRequest as JSON or CBOR, chosen by Content-Type.
// Response: api.VerifyResponse in the same encoding.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	contentType, err := requestContentType(r)
	if err != nil {
		h.observe(metrics.ResultError, start)
		h.writeError(w, &RequestError{http.StatusUnsupportedMediaType, err})
		return
	}

	var req api.VerifyRequest
	if err := h.decodeBody(w, r, contentType, &req); err != nil {
		h.observe(metrics.ResultError, start)
		h.writeError(w, err)
		return
	}

	resp, err := h.verify(&req)
	if err != nil {
		h.observe(metrics.ResultError, start)
		h.writeError(w, err)
		return
	}

	if resp.Valid {
		h.observe(metrics.ResultValid, start)
		h.log.Info("Chain verified",
			"deviceID", resp.DeviceIDFingerprint,
			"aliasKey", resp.AliasKeyFingerprint,
			"fwidHash", resp.FWIDHashAlg)
	} else {
		h.observe(metrics.ResultInvalid, start)
		h.log.Info("Chain rejected", "err", resp.Error)
	}

	h.writeResponse(w, contentType, resp)
}

func (h *Handler) verify(req *api.VerifyRequest) (*api.VerifyResponse, error) {
	if len(req.DeviceIDCSR) == 0 || len(req.AliasKeyCRT) == 0 {
		return nil, &RequestError{http.StatusBadRequest, errors.New("device_id_csr and alias_key_crt are required")}
	}

	csr, err := cryptoutils.ParseDeviceIDCSR(req.DeviceIDCSR)
	if err != nil {
		return nil, &RequestError{http.StatusBadRequest, err}
	}
	crt, err := cryptoutils.ParseAliasKeyCert(req.AliasKeyCRT)
	if err != nil {
		return nil, &RequestError{http.StatusBadRequest, err}
	}

	info, err := certencoder.VerifyChain(csr.DER(), crt.DER())
	if errors.Is(err, certencoder.ErrInvalidChain) {
		return api.InvalidVerifyResponse(err), nil
	}
	if err != nil {
		return nil, err
	}
	return api.NewVerifyResponse(info), nil
}

// HandleAlgorithms lists the hash and key algorithms Layer 0 can run with.
//
// URL format: GET /api/l0/algorithms
func (h *Handler) HandleAlgorithms(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, api.ContentTypeJSON, api.SupportedAlgorithms())
}

func requestContentType(r *http.Request) (string, error) {
	header := r.Header.Get("Content-Type")
	if header == "" {
		return api.ContentTypeJSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("invalid content type: %w", err)
	}
	switch mediaType {
	case api.ContentTypeJSON, api.ContentTypeCBOR:
		return mediaType, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, contentType string, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &RequestError{http.StatusRequestEntityTooLarge, err}
		}
		return &RequestError{http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) == 0 {
		return &RequestError{http.StatusBadRequest, errors.New("empty request body")}
	}
	if err := api.Decode(contentType, body, v); err != nil {
		return &RequestError{http.StatusBadRequest, fmt.Errorf("failed to decode request: %w", err)}
	}
	return nil
}

func (h *Handler) writeResponse(w http.ResponseWriter, contentType string, v any) {
	data, err := api.Encode(contentType, v)
	if err != nil {
		h.log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		http.Error(w, reqErr.Error(), reqErr.StatusCode)
		return
	}
	h.log.Error("Verification failed", "err", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) observe(result string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveVerification(result, time.Since(start))
	}
}
