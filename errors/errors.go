package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/clipfab/shorts-api/log"
	"github.com/xeipuuv/gojsonschema"
)

// Kind is the closed set of failure classes a job or request can surface.
type Kind string

const (
	BadRequest           Kind = "BadRequest"
	Unauthorized         Kind = "Unauthorized"
	NotFound             Kind = "NotFound"
	SourceUnusable       Kind = "SourceUnusable"
	TranscribeFailed     Kind = "TranscribeFailed"
	LLMFailed            Kind = "LLMFailed"
	EncoderFailed        Kind = "EncoderFailed"
	UploadFailed         Kind = "UploadFailed"
	NoSegmentsProducible Kind = "NoSegmentsProducible"
	JobTimeout           Kind = "JobTimeout"
	InternalError        Kind = "InternalError"
)

// JobError is the error record stored on a failed job and returned in
// status snapshots.
type JobError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func (e *JobError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewJobError(kind Kind, stage string, err error) *JobError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &JobError{Kind: kind, Message: msg, Stage: stage}
}

// AsJobError extracts a JobError from err's chain, classifying anything
// else as InternalError.
func AsJobError(err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return NewJobError(InternalError, "", err)
}

func IsKind(err error, kind Kind) bool {
	var je *JobError
	return errors.As(err, &je) && je.Kind == kind
}

type unretriableError struct {
	err error
}

func (e unretriableError) Error() string { return e.err.Error() }

func (e unretriableError) Unwrap() error { return e.err }

// Unretriable tags an error so that backoff loops stop immediately instead
// of burning the remaining attempts.
func Unretriable(err error) error {
	return backoff.Permanent(unretriableError{err})
}

func IsUnretriable(err error) bool {
	return errors.As(err, &unretriableError{})
}

type apiError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) apiError {
	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoJobID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}

	return apiError{msg, status, err}
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPConflict(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusConflict, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusTooManyRequests, err)
}

func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusUnsupportedMediaType, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) apiError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

func WriteHTTPBadBodySchema(where string, w http.ResponseWriter, errors []gojsonschema.ResultError) apiError {
	sb := strings.Builder{}
	sb.WriteString("Body validation error in ")
	sb.WriteString(where)
	sb.WriteString(" ")
	for i := 0; i < len(errors); i++ {
		sb.WriteString(errors[i].String())
		sb.WriteString(" ")
	}
	return writeHttpError(w, sb.String(), http.StatusBadRequest, nil)
}
