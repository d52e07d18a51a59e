package worker

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

// DirFetcher resolves asset paths against a directory on disk.
func DirFetcher(root string) Fetcher {
	return func(path string) ([]byte, error) {
		if containsDotDot(path) {
			return nil, fmt.Errorf("invalid asset path %q", path)
		}
		return os.ReadFile(filepath.Join(root, filepath.Clean("/"+path)))
	}
}

func containsDotDot(v string) bool {
	if !strings.Contains(v, "..") {
		return false
	}
	for _, ent := range strings.FieldsFunc(v, isSlashRune) {
		if ent == ".." {
			return true
		}
	}
	return false
}

func isSlashRune(r rune) bool { return r == '/' || r == '\\' }

// AssetHandler serves static assets through the runtime's fetch handler, so
// clients get cache-first, network-fallback behavior.
type AssetHandler struct {
	runtime *Runtime
}

func NewAssetHandler(runtime *Runtime) *AssetHandler {
	return &AssetHandler{runtime: runtime}
}

func (h *AssetHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/assets/{path:.*}", h.ServeAsset).Methods("GET")
}

func (h *AssetHandler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path := vars["path"]

	if containsDotDot(path) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	body, err := h.runtime.HandleFetch(path)
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Type", getContentType(path))
	w.Write(body)
}

func getContentType(filename string) string {
	ext := filepath.Ext(filename)
	switch ext {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
