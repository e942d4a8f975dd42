package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/fuszti/measure/utils"
)

const defaultLookback = 30 * 24 * time.Hour

var ErrTemplateInactive = errors.New("template is inactive")

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// repoError attaches the response code for errors returned by a repository.
func repoError(err error) error {
	var unknown *storage.UnknownValueDefinitionError
	switch {
	case errors.Is(err, storage.ErrTemplateNotFound), errors.Is(err, storage.ErrMeasurementNotFound):
		return CodedError(err, http.StatusNotFound)
	case errors.Is(err, measure.ErrInvalidTemplate), errors.As(err, &unknown):
		return CodedError(err, http.StatusUnprocessableEntity)
	default:
		return CodedError(err, http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Detail  string   `json:"detail"`
	Missing []string `json:"missing,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	res := errorResponse{Detail: err.Error()}

	var missing *measure.MissingValuesError
	if errors.As(err, &missing) {
		res.Missing = missing.Names
	}

	utils.WriteJsonStatus(w, GetResponseCode(err), res)
}

// unescapedOffset matches a positive zone offset whose '+' was decoded to a
// space because the query string was not url encoded.
var unescapedOffset = regexp.MustCompile(`^(.+\d) (\d{2}:\d{2})$`)

func parseQueryTime(value string) (time.Time, error) {
	parsed, err := measure.ParseTime(value)
	if err == nil {
		return parsed, nil
	}

	if m := unescapedOffset.FindStringSubmatch(value); m != nil {
		if parsed, retryErr := measure.ParseTime(m[1] + "+" + m[2]); retryErr == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w (a '+' in a zone offset must be url encoded as %%2B)", err)
}

// parseDateRange reads the start_date and end_date query parameters. A missing
// end defaults to now and a missing start to 30 days before the end.
func parseDateRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	end := now
	if value := r.URL.Query().Get("end_date"); value != "" {
		parsed, err := parseQueryTime(value)
		if err != nil {
			return time.Time{}, time.Time{}, CodedError(fmt.Errorf("invalid end_date: %w", err), http.StatusBadRequest)
		}
		end = parsed
	}

	start := end.Add(-defaultLookback)
	if value := r.URL.Query().Get("start_date"); value != "" {
		parsed, err := parseQueryTime(value)
		if err != nil {
			return time.Time{}, time.Time{}, CodedError(fmt.Errorf("invalid start_date: %w", err), http.StatusBadRequest)
		}
		start = parsed
	}

	return start, end, nil
}
