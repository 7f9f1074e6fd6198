package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipfab/shorts-api/errors"
	"github.com/julienschmidt/httprouter"
)

// Download serves clips published by local storage when no drive bucket is
// configured. Filenames are flat, anything that looks like a path is
// rejected before touching the filesystem.
func (d *ShortsAPIHandlersCollection) Download() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		name := ps.ByName("filename")
		if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
			errors.WriteHTTPBadRequest(w, "Invalid file name", nil)
			return
		}
		if !strings.HasSuffix(name, ".mp4") {
			errors.WriteHTTPNotFound(w, "File not found", nil)
			return
		}

		path := filepath.Join(d.OutputsDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			errors.WriteHTTPNotFound(w, "File not found", err)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
		http.ServeFile(w, req, path)
	}
}
