package siwe

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/warden/internal/credential"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// maxRequestBody bounds a verify or link request.
const maxRequestBody = 64 << 10

type handler struct {
	issuer Issuer
	logger LogWriter
}

// NewHandler serves issuer over the HTTP surface HTTPIssuer speaks:
// GET /auth/nonce, POST /auth/verify and POST /auth/link.
func NewHandler(issuer Issuer, logger LogWriter) http.Handler {
	h := &handler{issuer: issuer, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+noncePath, h.nonce)
	mux.HandleFunc("POST "+verifyPath, h.verify)
	mux.HandleFunc("POST "+linkPath, h.link)
	return mux
}

func (h *handler) nonce(w http.ResponseWriter, r *http.Request) {
	n, err := h.issuer.Nonce(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeBody(w, http.StatusOK, n)
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	msg, err := readSigned(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.issuer.Verify(r.Context(), msg)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeBody(w, http.StatusOK, res)
}

func (h *handler) link(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		h.fail(w, wardenerr.ErrNotAuthenticated)
		return
	}
	msg, err := readSigned(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.issuer.Link(r.Context(), &credential.Credential{Token: token}, msg)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeBody(w, http.StatusOK, res)
}

func readSigned(w http.ResponseWriter, r *http.Request) (SignedMessage, error) {
	var body signedBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		return SignedMessage{}, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"body": "malformed"})
	}
	sig, err := hexutil.Decode(body.Signature)
	if err != nil {
		return SignedMessage{}, wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"body": "signature"})
	}
	return SignedMessage{Message: body.Message, Signature: sig}, nil
}

// fail writes err as {code, message}. The status codes are the ones
// HTTPIssuer maps back to the same errors.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case wardenerr.Is(err, wardenerr.ErrAddressAlreadyLinked):
		status, code = http.StatusConflict, codeAlreadyLinked
	case wardenerr.Is(err, wardenerr.ErrChallengeExpired):
		status, code = http.StatusGone, codeNonceExpired
	case wardenerr.Is(err, wardenerr.ErrNotAuthenticated):
		status, code = http.StatusUnauthorized, "invalid_token"
	case wardenerr.Is(err, wardenerr.ErrNonceRejected):
		status, code = http.StatusForbidden, "nonce_rejected"
	case wardenerr.Is(err, wardenerr.ErrInvalidAddress), wardenerr.Is(err, wardenerr.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	}
	if status == http.StatusInternalServerError && h.logger != nil {
		h.logger.Error("issuer: %s", wardenerr.Code(err))
	} else if h.logger != nil {
		h.logger.Debug("issuer: rejected with %s", code)
	}
	writeBody(w, status, map[string]string{"code": code, "message": http.StatusText(status)})
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
