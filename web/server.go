// ABOUTME: Storyteller HTTP server: the prompt page, the SSE relay route, and the story library,
// ABOUTME: behind a single chi router with request logging, recovery, health, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/2389-research/storyteller/stories"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:3000"

// maxPages is the largest page count offered by the prompt form.
const maxPages = 10

// Server is the storyteller HTTP server.
type Server struct {
	templates   *TemplateEngine
	library     *stories.Library
	relay       http.Handler
	gatherer    prometheus.Gatherer
	storiesPath string
	router      chi.Router
	addr        string
}

// ServerConfig holds the configuration for the web server.
type ServerConfig struct {
	Addr    string           // listen address (default: DefaultAddr)
	Library *stories.Library // story library (required)
	Relay   http.Handler     // POST /api/run-script handler (required)
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	// StoriesPath is the output path the prompt form asks the engine to use.
	StoriesPath string
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("Library must not be nil")
	}
	if cfg.Relay == nil {
		return nil, fmt.Errorf("Relay must not be nil")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.StoriesPath == "" {
		cfg.StoriesPath = cfg.Library.Root()
	}

	templates, err := NewTemplateEngine()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		templates:   templates,
		library:     cfg.Library,
		relay:       cfg.Relay,
		gatherer:    cfg.Gatherer,
		storiesPath: cfg.StoriesPath,
		addr:        cfg.Addr,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. There is no write timeout because story runs stream for
// minutes. Request contexts derive from ctx, so shutdown also cancels
// in-flight runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("component=web action=listen addr=%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(webRequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Method(http.MethodPost, "/api/run-script", s.relay)

	r.Route("/stories", func(r chi.Router) {
		r.Get("/", s.handleStoryList)
		r.Handle("/assets/*", http.StripPrefix(stories.AssetsRoute+"/", s.assetHandler()))
		r.Get("/{id}", s.handleStory)
	})

	r.NotFound(s.handleNotFound)
	return r
}

// handleHome renders the prompt page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title:       "Write a story",
		StoriesPath: s.storiesPath,
		MaxPages:    maxPages,
	}
	if err := s.templates.Render(w, "home.html", data); err != nil {
		log.Printf("error rendering home: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStoryList renders every story in the library.
func (s *Server) handleStoryList(w http.ResponseWriter, r *http.Request) {
	list, err := s.library.List()
	if err != nil {
		log.Printf("error listing stories: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.templates.Render(w, "stories.html", PageData{Title: "Stories", Stories: list}); err != nil {
		log.Printf("error rendering stories: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// handleStory renders one story. chi matches on the raw path when the URL
// has one, so the id may still be percent-encoded; the library decodes it.
func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.library.Get(chi.URLParam(r, "id"))
	if errors.Is(err, stories.ErrStoryNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("error loading story: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.templates.Render(w, "story.html", PageData{Title: story.Title, Story: story}); err != nil {
		log.Printf("error rendering story: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.RenderStatus(w, http.StatusNotFound, "not_found.html", PageData{Title: "Not found"}); err != nil {
		log.Printf("error rendering not found: %v", err)
		http.NotFound(w, r)
	}
}

// assetHandler serves story files without directory listings.
func (s *Server) assetHandler() http.Handler {
	files := http.FileServer(http.Dir(s.library.Root()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			s.handleNotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
