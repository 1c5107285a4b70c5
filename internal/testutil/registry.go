package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Registry is an in-process fake of the package registry's HTTP surface.
// It records every request path so tests can assert on network usage.
type Registry struct {
	server *httptest.Server

	mu       sync.Mutex
	versions map[string][]string
	archives map[string][]byte
	statuses map[string]int
	hits     map[string]int
}

// NewRegistry starts a fake registry that is shut down when t finishes.
func NewRegistry(t testing.TB) *Registry {
	t.Helper()
	reg := &Registry{
		versions: make(map[string][]string),
		archives: make(map[string][]byte),
		statuses: make(map[string]int),
		hits:     make(map[string]int),
	}

	router := chi.NewRouter()
	router.Use(reg.record)
	router.Get("/packages/{name}/versions", reg.handleVersions)
	router.Get("/packages/{name}/{version}", reg.handleArchive)

	reg.server = httptest.NewServer(router)
	t.Cleanup(reg.server.Close)
	return reg
}

// URL returns the registry base URL.
func (r *Registry) URL() string {
	return r.server.URL
}

// Client returns an HTTP client wired to the fake server.
func (r *Registry) Client() *http.Client {
	return r.server.Client()
}

// SetVersions sets the version listing for name.
func (r *Registry) SetVersions(name string, versions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[name] = versions
}

// SetArchive serves data as the archive for name at version.
func (r *Registry) SetArchive(name string, version string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives[name+"@"+version] = data
}

// FailPath makes every request to path answer with status.
func (r *Registry) FailPath(path string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[path] = status
}

// Hits returns how many requests reached path.
func (r *Registry) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

// TotalHits returns the number of requests served.
func (r *Registry) TotalHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.hits {
		total += n
	}
	return total
}

func (r *Registry) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.hits[req.URL.Path]++
		status, failing := r.statuses[req.URL.Path]
		r.mu.Unlock()
		if failing {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Registry) handleVersions(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	r.mu.Lock()
	versions, ok := r.versions[name]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	if versions == nil {
		versions = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versions)
}

func (r *Registry) handleArchive(w http.ResponseWriter, req *http.Request) {
	key := chi.URLParam(req, "name") + "@" + chi.URLParam(req, "version")
	r.mu.Lock()
	data, ok := r.archives[key]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	_, _ = w.Write(data)
}
