package worker

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0o644))

	fetch := DirFetcher(dir)

	body, err := fetch("app.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("console.log('hi')"), body)

	_, err = fetch("missing.js")
	assert.Error(t, err)

	_, err = fetch("../outside.txt")
	assert.Error(t, err, "path traversal must be rejected")
}

func TestAssetHandler_ServesFromCache(t *testing.T) {
	fetcher := newAssetFetcher()
	r := testRuntime(fetcher, nil, nil)
	require.NoError(t, r.HandleInstall([]string{"app.css"}))

	router := mux.NewRouter()
	NewAssetHandler(r).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/assets/app.css", nil))

	require.Equal(t, 200, rr.Code)
	assert.Equal(t, "text/css", rr.Header().Get("Content-Type"))
	assert.Equal(t, "contents of app.css", rr.Body.String())
	assert.Equal(t, 1, fetcher.fetchCount("app.css"), "cached asset is not re-fetched per request")
}

func TestAssetHandler_MissIs404WhenNetworkFails(t *testing.T) {
	fetcher := newAssetFetcher("broken.js")
	r := testRuntime(fetcher, nil, nil)

	router := mux.NewRouter()
	NewAssetHandler(r).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/assets/broken.js", nil))

	assert.Equal(t, 404, rr.Code)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", getContentType("index.html"))
	assert.Equal(t, "application/javascript", getContentType("sw.js"))
	assert.Equal(t, "image/png", getContentType("icons/icon-192x192.png"))
	assert.Equal(t, "application/octet-stream", getContentType("manifest.webmanifest"))
}
