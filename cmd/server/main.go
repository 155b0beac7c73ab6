package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-auth-service/internal/config"
	"chat-auth-service/internal/factory"
	"chat-auth-service/internal/handler"
	"chat-auth-service/internal/util"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, f); err != nil {
		util.Error("Server exited with error", util.ErrorField(err))
		f.Close()
		os.Exit(1)
	}
}

// run serves HTTP and drains the delivery queue until ctx is cancelled,
// then shuts both down.
func run(ctx context.Context, f *factory.Factory) error {
	cfg := f.Config()
	router := setupRouter(f)
	servers := buildServers(f, cfg, router)

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		g.Go(func() error {
			util.Info("Starting server",
				util.String("address", s.server.Addr),
				util.Bool("tls", s.tls))
			if err := s.listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", s.server.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return f.RunWorkers(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
			}
		}
		util.Info("Server shutdown completed")
		return nil
	})

	if cfg.Server.EnableTLS {
		util.Info("Server started successfully",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.TLSPort),
			util.Bool("auto_cert", cfg.Server.AutoCert))
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port))
	}

	return g.Wait()
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	services := f.ServiceFactory()
	logger := f.Logger()

	authHandler := handler.NewAuthHandler(services.AuthService(), services.ChatService(), logger)
	chatHandler := handler.NewChatHandler(services.AuthService(), services.ChatService(), logger)

	return handler.NewRouter(authHandler, chatHandler, f, f.Config().Server, logger)
}

type managedServer struct {
	server *http.Server
	tls    bool
}

func (s managedServer) listen() error {
	if s.tls {
		// Certificates come from TLSConfig.GetCertificate.
		return s.server.ListenAndServeTLS("", "")
	}
	return s.server.ListenAndServe()
}

func buildServers(f *factory.Factory, cfg *config.Config, router http.Handler) []managedServer {
	if !cfg.Server.EnableTLS {
		return []managedServer{{server: newServer(cfg.GetServerAddress(), router, cfg), tls: false}}
	}

	httpsServer := newServer(fmt.Sprintf(":%d", cfg.Server.TLSPort), router, cfg)
	httpsServer.TLSConfig = f.TLSManager().GetTLSConfig()
	servers := []managedServer{{server: httpsServer, tls: true}}

	// With AutoCert the plain port answers ACME challenges and redirects
	// everything else to HTTPS.
	if autoCertManager := f.TLSManager().GetAutocertManager(); autoCertManager != nil {
		servers = append(servers, managedServer{
			server: &http.Server{
				Addr:              ":80",
				Handler:           autoCertManager.HTTPHandler(nil),
				ReadHeaderTimeout: 10 * time.Second,
			},
		})
	} else if cfg.IsProduction() && cfg.Server.AutoCert {
		util.Fatal("AutoCert manager is not available in production")
	}

	return servers
}

func newServer(addr string, h http.Handler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
