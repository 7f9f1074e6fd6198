// Package handlers holds the HTTP endpoints of the shorts API.
package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/julienschmidt/httprouter"
)

type ShortsAPIHandlersCollection struct {
	Coordinator *pipeline.Coordinator
	OutputsDir  string
}

func (d *ShortsAPIHandlersCollection) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		io.WriteString(w, "OK")
	}
}

func HasContentType(r *http.Request, mimetype string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return mimetype == "application/octet-stream"
	}

	for _, v := range strings.Split(contentType, ",") {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			break
		}
		if t == mimetype {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.LogErrorNoJobID("failed to marshal response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		log.LogErrorNoJobID("failed to write response", err)
	}
}
