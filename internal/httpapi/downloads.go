package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/obs"
)

var errBadID = errors.New("id must be a positive integer")

// pathFunc resolves the backend path of a download from the request.
type pathFunc func(r *http.Request) (string, error)

func exportPath(*http.Request) (string, error) { return backend.Export(), nil }

func idPath(build func(int64) string) pathFunc {
	return func(r *http.Request) (string, error) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			return "", errBadID
		}
		return build(id), nil
	}
}

// attachment sets the response headers from the backend's metadata before
// the first byte is copied.
type attachment struct {
	w        http.ResponseWriter
	prepared bool
}

func (a *attachment) Prepare(d backend.Download) {
	h := a.w.Header()
	h.Set("Content-Type", d.ContentType)
	if d.Filename != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	}
	if d.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	h.Set("Cache-Control", "private, no-store")
	a.w.WriteHeader(http.StatusOK)
	a.prepared = true
}

func (a *attachment) Write(p []byte) (int, error) { return a.w.Write(p) }

// download streams a backend file to the browser without buffering it.
func (a *API) download(resolve pathFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, err := resolve(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		out := &attachment{w: w}
		meta, err := a.backend.Download(r.Context(), rel, out)
		if err == nil {
			return
		}
		if out.prepared {
			// Headers are gone; the client sees a truncated body.
			obs.Logger().Warn("download_interrupted",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("file", meta.Filename),
				zap.Error(err))
			return
		}
		a.fail(w, r, err, "Download failed. Please try again.")
	}
}
