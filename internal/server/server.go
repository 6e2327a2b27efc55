package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"assetd/internal/blobstore"
	"assetd/internal/jobs"
	"assetd/internal/models"
	"assetd/internal/store"
	"assetd/internal/uploadpolicy"
)

const (
	adminTokenEnvKey  = "ASSETD_ADMIN_TOKEN"
	allowRemoteEnvKey = "ASSETD_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	loginMaxFailures   = 5
	loginFailureWindow = 15 * time.Minute
	loginBlockDuration = 15 * time.Minute
)

// Store is everything the HTTP layer persists through.
type Store interface {
	store.AssetStore
	store.OwnerStore
	store.PolicyStore
	store.ActivityStore
	store.AuthStore
}

// Options wires the collaborators of the asset subsystem.
type Options struct {
	Gateway   blobstore.Gateway
	Queue     jobs.Queue
	Validator *uploadpolicy.Validator

	// MaxSizeCeiling clamps declared upload sizes.
	MaxSizeCeiling       int64
	MetadataRefetchAfter time.Duration
	StreamChunkBytes     int
	OwnerCacheSize       int

	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	// Registerer receives per-route HTTP metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Server wraps HTTP handlers for the assetd API.
type Server struct {
	addr         string
	store        Store
	registry     *AssetRegistry
	proxy        *DeliveryProxy
	oracle       PermissionOracle
	owners       *ownerCache
	authService  *AuthService
	loginLimiter *loginRateLimiter
	gateway      blobstore.Gateway
	metrics      http.Handler
	httpMetrics  *httpMetrics
	logger       *slog.Logger
	adminToken   string
}

// New creates a new server instance and registers its background jobs on opts.Queue.
func New(addr string, st Store, opts Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("storage gateway is required")
	}
	if opts.Queue == nil {
		opts.Queue = jobs.NewInline(logger)
	}
	if opts.Validator == nil {
		opts.Validator = uploadpolicy.New()
	}

	owners, err := newOwnerCache(st, opts.OwnerCacheSize)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := newHTTPMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	oracle := NewStoreOracle(st)

	registry := NewAssetRegistry(RegistryConfig{
		Assets:               st,
		Owners:               st,
		Policies:             st,
		Activities:           st,
		Gateway:              opts.Gateway,
		Validator:            opts.Validator,
		Queue:                opts.Queue,
		Invalidator:          owners,
		MaxSizeCeiling:       opts.MaxSizeCeiling,
		MetadataRefetchAfter: opts.MetadataRefetchAfter,
		Logger:               logger.With("component", "registry"),
	})
	registry.RegisterJobs(opts.Queue)

	proxy := NewDeliveryProxy(st, oracle, opts.Gateway, registry, opts.StreamChunkBytes, logger.With("component", "delivery"))

	return &Server{
		addr:         addr,
		store:        st,
		registry:     registry,
		proxy:        proxy,
		oracle:       oracle,
		owners:       owners,
		authService:  NewAuthService(st),
		loginLimiter: newLoginRateLimiter(loginMaxFailures, loginFailureWindow, loginBlockDuration),
		gateway:      opts.Gateway,
		metrics:      opts.Metrics,
		httpMetrics:  httpMetrics,
		logger:       logger,
		adminToken:   strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(recordRoute(s.routes())))
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// assetURL is the path a client fetches an asset through.
func assetURL(asset *models.FileAsset, workspaceSlug string) string {
	if asset == nil {
		return ""
	}
	if asset.EntityType.Behavior().StaticRedirect {
		return staticAssetURL(asset.ID)
	}
	switch {
	case asset.WorkspaceID == "":
		return "/v1/users/me/assets/" + url.PathEscape(asset.ID)
	case asset.ProjectID != "":
		return "/v1/workspaces/" + url.PathEscape(workspaceSlug) + "/projects/" + url.PathEscape(asset.ProjectID) + "/assets/" + url.PathEscape(asset.ID)
	default:
		return "/v1/workspaces/" + url.PathEscape(workspaceSlug) + "/assets/" + url.PathEscape(asset.ID)
	}
}

func staticAssetURL(id string) string {
	return "/v1/static/assets/" + url.PathEscape(id)
}
