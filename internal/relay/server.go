// Package relay implements the relay server. Receivers keep a websocket open
// to it, senders ask it over HTTP to push files and clipboard text to them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/relaydrop/relaydrop/internal/file"
	"github.com/relaydrop/relaydrop/internal/logger"
	"github.com/relaydrop/relaydrop/internal/semver"
	"go.uber.org/zap"
)

// DefaultChunkSize is the size of the binary frames files are streamed in.
const DefaultChunkSize = 64 * 1024

const shutdownTimeout = 5 * time.Second

type Config struct {
	Port      int
	UploadDir string
	ChunkSize int
	// Address announced as sender in transfer requests. Resolved from the
	// network interfaces when empty.
	Address string
}

// Server contains the necessary data to run the relay server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	peers      *Peers
	devices    *Devices
	logger     *zap.Logger
	version    semver.Version

	uploadDir string
	chunkSize int
	address   string
}

// NewServer constructs a new Server and sets up its routes.
func NewServer(cfg Config, version semver.Version, lgr *zap.Logger) *Server {
	if lgr == nil {
		lgr = logger.New()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.Address == "" {
		if ip, err := LocalIP(); err == nil {
			cfg.Address = ip.String()
		} else {
			lgr.Warn("resolving local address", zap.Error(err))
			cfg.Address = "127.0.0.1"
		}
	}

	router := mux.NewRouter()
	stdLoggerWrapper, _ := zap.NewStdLogAt(lgr, zap.ErrorLevel)
	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			ReadHeaderTimeout: 30 * time.Second,
			Handler:           router,
			ErrorLog:          stdLoggerWrapper,
		},
		router:    router,
		peers:     &Peers{&sync.Map{}},
		devices:   &Devices{&sync.Map{}},
		logger:    lgr,
		version:   version,
		uploadDir: cfg.UploadDir,
		chunkSize: cfg.ChunkSize,
		address:   cfg.Address,
	}
	s.routes()
	return s
}

// Handler returns the router serving all relay endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the relay server until ctx is done. Pack archives left behind
// in the temp directory are removed on start and on shutdown.
func (s *Server) Start(ctx context.Context) error {
	file.RemoveTemporaryFiles(file.PackTempPrefix)
	defer file.RemoveTemporaryFiles(file.PackTempPrefix)
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	if err := serve(ctx, s, ln); err != nil {
		s.logger.Error("serving relay server", zap.Error(err), zap.Stack("stack_trace"))
		return err
	}
	return nil
}

// serve is a helper function providing graceful shutdown of the server.
func serve(ctx context.Context, s *Server, ln net.Listener) error {
	errC := make(chan error, 1)
	go func() {
		errC <- s.httpServer.Serve(ln)
	}()

	s.logger.
		With(zap.String("version", s.version.String())).
		With(zap.String("address", ln.Addr().String())).
		With(zap.String("announce", s.address)).
		Info("serving relay server")

	select {
	case err := <-errC:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.peers.CloseAll("relay shutting down")
	if err := s.httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("shutting down relay server: %w", err)
	}
	s.logger.Info("relay server shutdown successfully")
	return nil
}
