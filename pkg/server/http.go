package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/middleware"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		NewHttpServer,
	),
	fx.Invoke(Run),
)

// Server serves the gateway. With TLS enabled the certificate pair is
// re-read whenever either file changes, so rotations need no restart.
type Server struct {
	server *http.Server

	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
	stop     chan struct{}
}

// NewEngine builds the gin engine shared by every route module. Errors
// attached with c.Error are rendered by middleware.Error.
func NewEngine(cfg *config.Config) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP feeds the whitelist check, so only listed proxies may set
	// forwarding headers.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), middleware.Error(!cfg.IsProduction()))
	return r, nil
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr: listenAddr(cfg.Server.Addr),
			Handler: otelhttp.NewHandler(p.Handler, cfg.AppName,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}),
			),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
		stop:     make(chan struct{}),
	}

	if cfg.TLS.Enable {
		if err := srv.reloadCert(); err != nil {
			return nil, fmt.Errorf("load tls certificate: %w", err)
		}
		srv.server.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: srv.getCertificate,
		}
	}

	return srv, nil
}

// listenAddr accepts "8080" as well as ":8080" or "host:8080".
func listenAddr(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return ":" + addr
}

func (s *Server) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	s.certMu.RLock()
	defer s.certMu.RUnlock()

	if s.cert == nil {
		return nil, errors.New("no TLS certificate loaded")
	}
	return s.cert, nil
}

// reloadCert keeps the previous certificate when the new pair fails to load.
func (s *Server) reloadCert() error {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return err
	}
	s.certMu.Lock()
	s.cert = &cert
	s.certMu.Unlock()
	return nil
}

func (s *Server) watchCert() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("[Server] certificate watcher unavailable", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, p := range []string{s.certPath, s.keyPath} {
		if err := watcher.Add(p); err != nil {
			zap.L().Warn("[Server] cannot watch certificate file", zap.String("path", p), zap.Error(err))
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reloadCert(); err != nil {
				zap.L().Error("[Server] certificate reload failed, keeping previous", zap.Error(err))
				continue
			}
			zap.L().Info("[Server] certificate reloaded", zap.String("path", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("[Server] certificate watcher error", zap.Error(err))
		}
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			tlsOn := srv.server.TLSConfig != nil
			if tlsOn {
				go srv.watchCert()
			}

			go func() {
				zap.L().Info("[Server] listening", zap.String("addr", srv.server.Addr), zap.Bool("tls", tlsOn))
				var err error
				if tlsOn {
					// certificates come from GetCertificate
					err = srv.server.ListenAndServeTLS("", "")
				} else {
					err = srv.server.ListenAndServe()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("[Server] stopped", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[Server] shutting down")
			close(srv.stop)
			return srv.server.Shutdown(ctx)
		},
	})
}
