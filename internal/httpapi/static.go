package httpapi

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"telemetry-server/internal/utils"
)

const indexDocument = "index.html"

// staticHandler serves the frontend bundle. Unknown paths fall back to the
// index document so client-side routes load the app; unknown /api/ paths are
// a JSON 404 instead.
type staticHandler struct {
	root string
}

func newStaticHandler(root string) *staticHandler {
	return &staticHandler{root: root}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	if strings.HasPrefix(rel, "api/") {
		utils.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	// Cleaning against "/" keeps ".." segments inside root.
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel != "" && s.serveFile(w, r, rel) {
		return
	}
	if !s.serveFile(w, r, indexDocument) {
		utils.WriteError(w, http.StatusNotFound, "Not found")
	}
}

// serveFile writes root/rel when it is a regular file and reports whether it did.
func (s *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, rel string) bool {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("static: open failed", "path", rel, "error", err)
		}
		return false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}
