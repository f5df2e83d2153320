package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/planner"
	"github.com/erazemk/oprema/internal/schedule"
	"github.com/erazemk/oprema/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var validate = validator.New(validator.WithRequiredStructEnabled())

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Default().Error("failed to encode response", sl.Err(err))
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into target and validates it.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return err
	}
	return validate.Struct(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidLine),
		errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrNoVenue),
		errors.Is(err, planner.ErrNoReason),
		errors.Is(err, store.ErrWrongKind):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, planner.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrAssetAlreadyClaimed),
		errors.Is(err, planner.ErrNotApproved),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrDataSource):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// serviceError logs err and writes it with the status statusFor picks. Server
// side failures are reported without detail.
func serviceError(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusServiceUnavailable:
		log.Error(msg, sl.Err(err))
		jsonError(w, status, "data source unavailable")
	case status >= http.StatusInternalServerError:
		log.Error(msg, sl.Err(err))
		jsonError(w, status, msg)
	default:
		log.Debug(msg, sl.Err(err))
		jsonError(w, status, err.Error())
	}
}
