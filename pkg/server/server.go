package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cilia/pkg/config"
	"cilia/pkg/handlers"
	"cilia/pkg/middleware"
	"cilia/pkg/oauth"
	"cilia/pkg/seal"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the site backend
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider *oauth.Provider
	handler  http.Handler
}

// New wires the provider, handlers and middleware from configuration
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	method, err := oauth.ParsePKCEMethod(cfg.Twitter.PKCEMethod)
	if err != nil {
		return nil, err
	}

	provider, err := oauth.NewProvider(oauth.Config{
		ClientID:     cfg.Twitter.ClientID,
		ClientSecret: cfg.Twitter.ClientSecret,
		RedirectURL:  cfg.Twitter.RedirectURI,
		PKCEMethod:   method,
		Timeout:      cfg.HTTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up twitter provider: %w", err)
	}

	var sealer *seal.Sealer
	if cfg.Cookie.Secret != "" {
		sealer, err = seal.FromSecret([]byte(cfg.Cookie.Secret))
		if err != nil {
			return nil, fmt.Errorf("failed to set up cookie sealing: %w", err)
		}
	}

	auth := handlers.NewAuthHandler(provider, handlers.AuthOptions{
		CookieSecure: cfg.Cookie.Secure,
		CookieTTL:    cfg.Cookie.TTL,
		Sealer:       sealer,
		Timeout:      cfg.HTTP.Timeout,
	}, logger.Named("auth"))

	proxy := handlers.NewImageProxy(handlers.ProxyOptions{
		AllowedHosts: cfg.Proxy.AllowedHosts,
		MaxBytes:     cfg.Proxy.MaxBytes,
		UserAgent:    cfg.Proxy.UserAgent,
		Timeout:      cfg.HTTP.Timeout,
	}, logger.Named("proxy"))

	router := NewRouter(Routes{
		Auth:  auth,
		Proxy: proxy,
		Info:  handlers.HandleInfo(cfg.Server.BaseURL, provider, cfg.Proxy.AllowedHosts),
	}, logger.Named("http"))

	var handler http.Handler = router
	if len(cfg.Server.AllowedOrigins) > 0 {
		handler = middleware.CORS(cfg.Server.AllowedOrigins)(handler)
	}
	if cfg.Server.TLSEnabled() {
		handler = middleware.HSTS(handler)
	}
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.RequestID(handler)

	return &Server{cfg: cfg, logger: logger, provider: provider, handler: handler}, nil
}

// Routes are the handlers mounted by NewRouter
type Routes struct {
	Auth  *handlers.AuthHandler
	Proxy *handlers.ImageProxy
	Info  http.HandlerFunc
}

// NewRouter registers every endpoint. The callback route is registered
// before the {provider} route so "callback" is never taken as a provider.
func NewRouter(routes Routes, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logger))

	r.HandleFunc("/", handlers.HandleHome).Methods(http.MethodGet)
	r.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/info", routes.Info).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/callback", routes.Auth.HandleCallback).Methods(http.MethodGet)
	api.HandleFunc("/auth/{provider}", routes.Auth.HandleStart).Methods(http.MethodGet)
	api.Handle("/proxy-image", routes.Proxy).Methods(http.MethodGet)

	r.NotFoundHandler = middleware.RequestLogger(logger)(http.HandlerFunc(handlers.HandleNotFound))
	r.MethodNotAllowedHandler = middleware.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"Method not allowed"}` + "\n"))
	}))
	return r
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(s.logger.Named("net/http")),
	}

	if !s.provider.Configured() {
		s.logger.Warn("twitter client id is not configured; /api/auth/twitter will answer 500")
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting cilia server",
			zap.String("listen_addr", s.cfg.Server.ListenAddr),
			zap.String("base_url", s.cfg.Server.BaseURL),
			zap.String("redirect_uri", s.cfg.Twitter.RedirectURI),
			zap.String("pkce_method", string(s.provider.PKCEMethod())),
			zap.Bool("tls", s.cfg.Server.TLSEnabled()),
			zap.Bool("sealed_cookies", s.cfg.Cookie.Secret != ""),
			zap.Strings("allowed_origins", s.cfg.Server.AllowedOrigins),
		)
		var err error
		if s.cfg.Server.TLSEnabled() {
			err = srv.ListenAndServeTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
