package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keyfate/keyfate/checkin"
	"github.com/keyfate/keyfate/interfaces"
	"github.com/keyfate/keyfate/metrics"
)

// Redeemer consumes a check-in token. Satisfied by checkin.Service.
type Redeemer interface {
	Redeem(ctx context.Context, token string) (*checkin.Result, error)
}

// Processor runs one reminder dispatch pass. Satisfied by
// reminder.Dispatcher.
type Processor interface {
	RunOnce(ctx context.Context) (int, error)
}

// Handler implements the public check-in endpoint and the internal
// reminder-processing hook for deployments driven by an external cron.
type Handler struct {
	redeemer  Redeemer
	processor Processor

	// internalToken guards /api/internal. Empty disables the endpoint.
	internalToken string

	log *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(redeemer Redeemer, processor Processor, internalToken string, log *slog.Logger) *Handler {
	return &Handler{
		redeemer:      redeemer,
		processor:     processor,
		internalToken: internalToken,
		log:           log,
	}
}

type checkInResponse struct {
	SecretTitle string    `json:"secretTitle"`
	NextCheckIn time.Time `json:"nextCheckIn"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// HandleCheckIn redeems the token from the query string and reports the new
// deadline. Expired and already-used tokens carry a redirect so browser
// clients can land on an explanatory page.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing token"})
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), token)
	switch {
	case err == nil:
		metrics.CheckInsRecorded.Inc()
		writeJSON(w, http.StatusOK, checkInResponse{
			SecretTitle: result.SecretTitle,
			NextCheckIn: result.NewNextCheckIn,
		})
	case errors.Is(err, interfaces.ErrTokenNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "invalid check-in link"})
	case errors.Is(err, interfaces.ErrTokenExpired):
		writeJSON(w, http.StatusGone, errorResponse{
			Error:    "check-in link expired",
			Redirect: "/checkin/expired",
		})
	case errors.Is(err, interfaces.ErrTokenAlreadyUsed):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:    "check-in link already used",
			Redirect: "/checkin/already-used",
		})
	default:
		h.log.Error("Check-in failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "check-in failed"})
	}
}

type processResponse struct {
	Processed int `json:"processed"`
}

// HandleProcessReminders runs one dispatch pass. The endpoint exists for
// deployments that schedule processing from an external cron instead of the
// in-process job; it is guarded by a bearer token.
func (h *Handler) HandleProcessReminders(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	processed, err := h.processor.RunOnce(r.Context())
	if err != nil {
		h.log.Error("Reminder processing failed",
			slog.Int("processed", processed),
			slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reminder processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, processResponse{Processed: processed})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.internalToken == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.internalToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
