package handlers

import (
	"net/http"

	"github.com/clipfab/shorts-api/config"
	"github.com/julienschmidt/httprouter"
)

// Healthz answers load balancer probes. It only asserts the process is up;
// a full queue is still healthy.
func (d *ShortsAPIHandlersCollection) Healthz() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (d *ShortsAPIHandlersCollection) Version() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": config.Version,
			"commit":  config.Commit,
		})
	}
}
