package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ghg-data-pipeline/pkg/logging"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

// RequestHook observes every finished request with the route pattern that served it.
type RequestHook func(route, method string, status int, duration time.Duration)

type Router struct {
	mux      *http.ServeMux
	routes   map[string]HandlerFunc // key = METHOD:PATH
	paths    map[string]bool        // track registered paths
	patterns []string               // wildcard paths, in registration order
	logger   *logging.StructuredLogger
	hooks    []RequestHook
	server   *http.Server
}

func New(logger *logging.StructuredLogger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		routes: make(map[string]HandlerFunc),
		paths:  make(map[string]bool),
		logger: logger,
	}

	// Catch-all handler for unknown paths
	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		route := r.dispatch(lrw, req)
		r.finish(route, req, lrw.statusCode, time.Since(start))
	})

	return r
}

// dispatch runs the matching handler and returns the route pattern that served the request.
func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) string {
	key := req.Method + ":" + req.URL.Path
	if h, ok := r.routes[key]; ok {
		h(w, req)
		return req.URL.Path
	}

	// Wildcard routes are tried in registration order, so register specific ones first.
	methodMismatch := r.paths[req.URL.Path]
	for _, routePath := range r.patterns {
		if !matchWildcardRoute(req.URL.Path, routePath) {
			continue
		}
		if h, ok := r.routes[req.Method+":"+routePath]; ok {
			h(w, req)
			return routePath
		}
		methodMismatch = true
	}

	if methodMismatch {
		// Path exists but method not allowed
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	} else {
		http.Error(w, "Not Found", http.StatusNotFound)
	}
	return "unmatched"
}

func (r *Router) finish(route string, req *http.Request, status int, duration time.Duration) {
	fields := logging.Fields{
		"method":      req.Method,
		"path":        req.URL.Path,
		"route":       route,
		"status":      status,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}
	switch {
	case status >= 500:
		r.logger.Error("request failed", fields, nil)
	case status >= 400:
		r.logger.Warn("request rejected", fields)
	default:
		r.logger.Info("request served", fields)
	}
	for _, hook := range r.hooks {
		hook(route, req.Method, status, duration)
	}
}

// matchWildcardRoute checks if a request path matches a wildcard route pattern
func matchWildcardRoute(requestPath, routePattern string) bool {
	requestSegments := strings.Split(strings.Trim(requestPath, "/"), "/")
	routeSegments := strings.Split(strings.Trim(routePattern, "/"), "/")

	// Handle single wildcard at the end (matches one or more remaining segments)
	if len(routeSegments) > 0 && routeSegments[len(routeSegments)-1] == "*" {
		if len(requestSegments) < len(routeSegments) {
			return false
		}
		for i := 0; i < len(routeSegments)-1; i++ {
			if routeSegments[i] != "*" && requestSegments[i] != routeSegments[i] {
				return false
			}
		}
		return requestSegments[len(routeSegments)-1] != ""
	}

	if len(requestSegments) != len(routeSegments) {
		return false
	}
	for i, routeSegment := range routeSegments {
		if routeSegment == "*" {
			if requestSegments[i] == "" {
				return false
			}
			continue
		}
		if requestSegments[i] != routeSegment {
			return false
		}
	}
	return true
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	key := method + ":" + path
	r.routes[key] = handler
	if strings.Contains(path, "*") && !r.paths[path] {
		r.patterns = append(r.patterns, path)
	}
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Mount serves every request under prefix with h, bypassing method routing. prefix should
// end in "/" to cover a subtree.
func (r *Router) Mount(prefix string, h http.Handler) {
	r.mux.HandleFunc(prefix, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h.ServeHTTP(lrw, req)
		r.finish(prefix, req, lrw.statusCode, time.Since(start))
	})
}

// OnRequest adds a hook called after every request.
func (r *Router) OnRequest(hook RequestHook) {
	r.hooks = append(r.hooks, hook)
}

// Getter methods for testing
func (r *Router) Routes() map[string]HandlerFunc {
	return r.routes
}

func (r *Router) Paths() map[string]bool {
	return r.paths
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Start listens on addr until Shutdown is called.
func (r *Router) Start(addr string) error {
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.logger.Info("server started", logging.Fields{"addr": addr})
	if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start, waiting for in-flight requests.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
