package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"
)

// CreateJob accepts a clip generation request and returns the queued job
// record. With an idempotency key that matched an earlier submission the
// existing record comes back instead of a duplicate job.
func (d *ShortsAPIHandlersCollection) CreateJob() httprouter.Handle {
	schema := inputSchemasCompiled["CreateJob"]
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if !HasContentType(req, "application/json") {
			errors.WriteHTTPUnsupportedMediaType(w, "Requires application/json content type", nil)
			return
		}
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "Cannot read body", err)
			return
		}
		result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
		if err != nil {
			errors.WriteHTTPBadRequest(w, "Invalid request payload", err)
			return
		}
		if !result.Valid() {
			errors.WriteHTTPBadBodySchema("CreateJob", w, result.Errors())
			return
		}
		var jobReq pipeline.JobRequest
		if err := json.Unmarshal(payload, &jobReq); err != nil {
			errors.WriteHTTPBadRequest(w, "Invalid request payload", err)
			return
		}

		snap, _, err := d.Coordinator.CreateJob(jobReq)
		if err == pipeline.ErrQueueFull {
			errors.WriteHTTPTooManyRequests(w, "Job queue is full, try again later", err)
			return
		}
		if err != nil {
			errors.WriteHTTPBadRequest(w, "Invalid job request", err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	}
}

// GetJob returns the current state of a job for polling clients.
func (d *ShortsAPIHandlersCollection) GetJob() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		snap, err := d.Coordinator.GetJob(ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPNotFound(w, "Job not found", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// RetryJob re-runs a finished job, optionally overriding its options. The
// body is optional; an empty body retries with the stored options.
func (d *ShortsAPIHandlersCollection) RetryJob() httprouter.Handle {
	schema := inputSchemasCompiled["RetryJob"]
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "Cannot read body", err)
			return
		}

		var override *pipeline.Options
		if len(payload) > 0 {
			result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
			if err != nil {
				errors.WriteHTTPBadRequest(w, "Invalid request payload", err)
				return
			}
			if !result.Valid() {
				errors.WriteHTTPBadBodySchema("RetryJob", w, result.Errors())
				return
			}
			var body struct {
				Options *pipeline.Options `json:"options"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				errors.WriteHTTPBadRequest(w, "Invalid request payload", err)
				return
			}
			override = body.Options
		}

		snap, err := d.Coordinator.RetryJob(ps.ByName("id"), override)
		switch {
		case err == pipeline.ErrJobNotFound:
			errors.WriteHTTPNotFound(w, "Job not found", err)
		case err == pipeline.ErrNotTerminal:
			errors.WriteHTTPConflict(w, "Job is still queued or running", err)
		case err == pipeline.ErrQueueFull:
			errors.WriteHTTPTooManyRequests(w, "Job queue is full, try again later", err)
		case err != nil:
			errors.WriteHTTPBadRequest(w, "Invalid retry request", err)
		default:
			writeJSON(w, http.StatusCreated, snap)
		}
	}
}
