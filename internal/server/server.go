package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"visgw/internal/constants"
	"visgw/internal/datasrc"
	"visgw/internal/gateway"
	"visgw/internal/security"
	"visgw/internal/session"
	"visgw/internal/signalcache"
	"visgw/internal/token"
	"visgw/internal/utils"
)

// dataSource is the upstream the gateway forwards set/getVSS requests to
// and receives signal batches from. Either a WebSocket client connected
// to a data source server, or the built-in mock feed.
type dataSource interface {
	gateway.Forwarder
	Run()
	Close() error
}

type Server struct {
	Registry    *session.Registry
	Corr        *gateway.CorrelationMap
	Dispatcher  *gateway.Dispatcher
	Engine      *gateway.Engine
	Cache       signalcache.Store
	DataSrc     dataSource
	ConnLimiter *security.ConnectionLimiter
	Port        string
	UseTLS      bool
}

func NewServer() (*Server, error) {
	pendingTTL := utils.GetEnvDuration("VISGW_PENDING_TTL", constants.PendingRequestTTL)
	authTTL := utils.GetEnvDuration("VISGW_AUTHORIZE_TTL", constants.AuthorizeTTL)
	validToken := utils.GetEnv("VISGW_VALID_TOKEN", constants.DefaultValidToken)

	cache := signalcache.NewStore()
	registry := session.NewRegistry(constants.DefaultRestrictedPaths, pendingTTL)
	corr := gateway.NewCorrelationMap(pendingTTL)

	// A closed client session must not leave correlation entries behind,
	// or a late data source reply would resolve against a dead session.
	registry.OnDestroy = corr.DropSession

	engine := gateway.NewEngine(registry, corr, cache)

	var ds dataSource
	srcURL := utils.GetEnv("VISGW_DATASRC_URL", constants.DefaultDataSrcURL)
	if srcURL == "" || srcURL == "mock" {
		log.Println("🚗 Using built-in mock data source")
		ds = datasrc.NewMockFeed(engine.HandleDataSourceMessage, constants.MockFeedInterval)
	} else {
		log.Printf("🚗 Data source: %s", srcURL)
		ds = datasrc.NewClient(srcURL, engine.HandleDataSourceMessage)
	}

	judge := token.NewStaticJudge(validToken)
	dispatcher := gateway.NewDispatcher(registry, corr, ds, judge, authTTL)

	s := &Server{
		Registry:    registry,
		Corr:        corr,
		Dispatcher:  dispatcher,
		Engine:      engine,
		Cache:       cache,
		DataSrc:     ds,
		ConnLimiter: security.NewConnectionLimiter(constants.MaxConnectionsPerIP),
	}

	return s, nil
}

func (s *Server) Run() {
	addr := utils.GetEnv("VISGW_ADDR", constants.DefaultAddr)
	s.Port = strings.TrimPrefix(addr, ":")
	certFile := utils.GetEnv("VISGW_CERT_FILE", "certs/server.crt")
	keyFile := utils.GetEnv("VISGW_KEY_FILE", "certs/server.key")

	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointStatus, s.HandleStatus)
	mux.HandleFunc(constants.EndpointWebSocket, s.HandleWebSocket)

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)
	handler = security.SecurityHeaders(handler)

	enableTLS := strings.ToLower(utils.GetEnv("VISGW_ENABLE_TLS", "false")) == "true"
	useTLS := false

	if enableTLS {
		if _, err := os.Stat(certFile); err == nil {
			if _, err := os.Stat(keyFile); err == nil {
				useTLS = true
			}
		}

		if !useTLS {
			log.Printf("Warning: VISGW_ENABLE_TLS is true but certs not found at %s", certFile)
		}
	}
	s.UseTLS = useTLS

	var h2Handler http.Handler
	if useTLS {
		h2Handler = handler
	} else {
		h2Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           h2Handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go s.DataSrc.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if useTLS {
		log.Printf("🔒 HTTPS enabled (HTTP/2)")
		go func() {
			if err := server.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server error: %v", err)
			}
		}()
	} else {
		log.Printf("🌐 HTTP mode (HTTP/2 enabled)")
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	log.Printf("🚀 visgw server starting on :%s", s.Port)

	<-sigChan
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	s.Cleanup()
	log.Println("✅ Server stopped")
}

func (s *Server) Cleanup() {
	if err := s.DataSrc.Close(); err != nil {
		log.Printf("Data source close error: %v", err)
	}
	s.Registry.Close()
	s.Corr.Close()
	if err := s.Cache.Close(); err != nil {
		log.Printf("Signal cache close error: %v", err)
	}
}
