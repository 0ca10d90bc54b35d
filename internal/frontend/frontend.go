// Package frontend serves the public redirect site: paste a URL after the
// host and get sent to its archive snapshot.
package frontend

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/metrics"
	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/resolver"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const fetchErrorMessage = "Error fetching archive."

// Resolver resolves a normalized URL to an archive link.
type Resolver interface {
	Resolve(ctx context.Context, u normalize.URL) (resolver.Result, error)
}

// Config describes the public site.
type Config struct {
	SiteName       string
	PublicBaseURL  string
	GitHubURL      string
	ContactEmail   string
	ResolveTimeout time.Duration
}

// Server renders the landing page and redirects targets to their archives.
type Server struct {
	cfg      Config
	resolver Resolver
	logger   *zap.Logger
	router   chi.Router
}

// NewServer builds the frontend router.
func NewServer(cfg Config, res Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "unbloq"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.GitHubURL = strings.TrimRight(cfg.GitHubURL, "/")
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 90 * time.Second
	}
	s := &Server{cfg: cfg, resolver: res, logger: logger}

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/", s.landing)
	r.Get("/*", s.redirect)
	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) landing(w http.ResponseWriter, r *http.Request) {
	// The landing form submits ?url=; bounce it onto the path form. The
	// Location is set directly since http.Redirect would clean "//" to "/".
	// Normalizing first keeps it same-origin: it always starts with "/http".
	if raw := strings.TrimSpace(r.URL.Query().Get("url")); raw != "" {
		target, err := normalize.Normalize(raw)
		switch {
		case errors.Is(err, normalize.ErrNoTarget):
		case err != nil:
			s.renderError(w, http.StatusBadRequest, "That does not look like a URL.", "")
			return
		default:
			w.Header().Set("Location", "/"+target.String())
			w.WriteHeader(http.StatusSeeOther)
			return
		}
	}
	s.render(w, http.StatusOK, "landing.html", s.cfg)
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	suffix := r.URL.Path
	if r.URL.RawQuery != "" {
		suffix += "?" + r.URL.RawQuery
	}

	target, err := normalize.Normalize(suffix)
	switch {
	case errors.Is(err, normalize.ErrNoTarget):
		s.render(w, http.StatusOK, "landing.html", s.cfg)
		return
	case err != nil:
		s.renderError(w, http.StatusBadRequest, "That does not look like a URL.", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResolveTimeout)
	defer cancel()
	res, err := s.resolver.Resolve(ctx, target)
	if err != nil || res.Link == "" {
		s.logger.Warn("archive lookup failed", zap.String("url", target.String()), zap.Error(err))
		s.renderError(w, http.StatusBadGateway, fetchErrorMessage, target.String())
		return
	}
	s.logger.Info("redirecting",
		zap.String("url", target.String()),
		zap.Stringer("status", res.Status),
		zap.String("link", res.Link),
	)
	http.Redirect(w, r, res.Link, http.StatusTemporaryRedirect)
}

type errorView struct {
	SiteName     string
	Message      string
	Target       string
	RetryURL     string
	IssueURL     string
	ContactEmail string
}

func (s *Server) renderError(w http.ResponseWriter, status int, message, target string) {
	view := errorView{
		SiteName:     s.cfg.SiteName,
		Message:      message,
		Target:       target,
		ContactEmail: s.cfg.ContactEmail,
	}
	if target != "" {
		view.RetryURL = s.cfg.PublicBaseURL + "/" + target
		if s.cfg.GitHubURL != "" {
			view.IssueURL = s.cfg.GitHubURL + "/issues/new?title=" +
				url.QueryEscape("Unable to create archive for "+target)
		}
	}
	s.render(w, status, "error.html", view)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page", zap.Error(err))
	}
}
