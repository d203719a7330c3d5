// handlers.go specifies the handlers the relay uses to push files and clipboard text to connected receivers.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/internal/file"
	"github.com/relaydrop/relaydrop/internal/logger"
	"github.com/relaydrop/relaydrop/internal/storage"
	"github.com/relaydrop/relaydrop/protocol/api"
	"github.com/relaydrop/relaydrop/protocol/signal"
	"github.com/tomasen/realip"
	"go.uber.org/zap"
)

// readClipboard is replaced in tests.
var readClipboard = clipboard.ReadAll

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleConnect returns a websocket handler that keeps a receiver registered
// under its client IP and streams files to it once it accepts them.
func (s *Server) handleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger, err := logger.FromContext(ctx)
		if err != nil {
			return
		}
		ws, err := conn.FromContext(ctx)
		if err != nil {
			logger.Error("getting Conn from request context", zap.Error(err))
			return
		}
		defer ws.Close("relay closing connection") //nolint:errcheck

		ip := realip.FromRequest(r)
		peer := newPeer(ws)
		logger = logger.With(zap.String("peer_id", peer.ID))
		s.peers.Register(ip, peer)
		logger.Info("receiver connected")
		defer func() {
			s.peers.Unregister(ip, peer)
			logger.Info("receiver disconnected")
		}()

		for {
			msg, err := peer.sc.ReadMsg(ctx, signal.KindConsentResponse)
			var kindErr signal.Error
			switch {
			case errors.As(err, &kindErr):
				logger.Debug("ignoring message", zap.String("kind", kindErr.Got.Name()))
				continue
			case errors.Is(err, signal.ErrMalformedFrame):
				logger.Warn("dropping malformed frame", zap.Error(err))
				continue
			case errors.Is(err, conn.ErrClosed):
				return
			case errors.Is(err, context.Canceled):
				logger.Info("context canceled, closing connection")
				return
			case err != nil:
				logger.Error("reading from receiver", zap.Error(err))
				return
			}

			response := msg.(signal.ConsentResponse)
			path := peer.take()
			if path == "" {
				logger.Warn("transfer response without pending request", zap.Bool("accept", response.Accept))
				continue
			}
			if !response.Accept {
				logger.Info("transfer rejected", zap.String("path", path))
				continue
			}
			if err := s.transfer(ctx, peer, path, logger); err != nil {
				logger.Error("transferring file", zap.String("path", path), zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) handleSendFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req api.SendFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
			return
		}
		if req.ClientIP == "" || req.Filepath == "" {
			http.Error(w, "client_ip and filepath are required", http.StatusBadRequest)
			return
		}
		if req.Filename == "" {
			req.Filename = filepath.Base(req.Filepath)
		}
		logger = logger.With(zap.String("client_ip", req.ClientIP), zap.String("path", req.Filepath))

		peer, ok := s.peers.Get(req.ClientIP)
		if !ok {
			logger.Info("device offline")
			writeJSON(w, logger, api.StatusResponse{Status: api.StatusDeviceOffline})
			return
		}
		logger = logger.With(zap.String("peer_id", peer.ID))
		size, err := file.FileSize(req.Filepath)
		if err != nil {
			logger.Info("offered path not found", zap.Error(err))
			http.Error(w, fmt.Sprintf("file %s not found", req.Filepath), http.StatusNotFound)
			return
		}
		logger = logger.With(zap.Int64("size", size))
		peer.offer(req.Filepath)
		if err := peer.sc.WriteMsg(r.Context(), signal.ConsentRequest{Filename: req.Filename, Sender: s.address}); err != nil {
			peer.take()
			logger.Error("sending transfer request", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		logger.Info("transfer request sent")
		writeJSON(w, logger, api.StatusResponse{Status: api.StatusRequestSent})
	}
}

func (s *Server) handleClipboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req api.ClipboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
			return
		}
		peer, ok := s.peers.Get(req.ClientIP)
		if !ok {
			writeJSON(w, logger, api.StatusResponse{Status: api.StatusDeviceOffline})
			return
		}
		text := req.Text
		if text == "" {
			if text, err = readClipboard(); err != nil {
				logger.Error("reading host clipboard", zap.Error(err))
				http.Error(w, "reading host clipboard", http.StatusInternalServerError)
				return
			}
		}
		if err := peer.sc.WriteMsg(r.Context(), signal.ClipboardUpdate{Text: text}); err != nil {
			logger.Error("sending clipboard", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, logger, api.StatusResponse{Status: api.StatusClipboardSent})
	}
}

// handleUpload stores a multipart upload in the upload directory.
func (s *Server) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger, err := logger.FromContext(ctx)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, "expected multipart form", http.StatusBadRequest)
			return
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				http.Error(w, fmt.Sprintf("missing form field %q", api.UploadField), http.StatusBadRequest)
				return
			}
			if err != nil {
				http.Error(w, fmt.Sprintf("reading form: %v", err), http.StatusBadRequest)
				return
			}
			if part.FormName() != api.UploadField || part.FileName() == "" {
				continue
			}

			path, n, err := s.store(ctx, part.FileName(), part)
			if err != nil {
				logger.Error("storing upload", zap.String("file", part.FileName()), zap.Error(err))
				http.Error(w, fmt.Sprintf("storing %s: %v", part.FileName(), err), http.StatusInternalServerError)
				return
			}
			name := filepath.Base(path)
			logger.Info("upload stored", zap.String("path", path), zap.Int64("size", n))
			writeJSON(w, logger, api.UploadResponse{
				Info:     fmt.Sprintf("file '%s' uploaded", name),
				Filename: name,
			})
			return
		}
	}
}

func (s *Server) handleRecordIP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ip := requestIP(r)
		s.devices.Add(ip)
		logger.Info("device recorded", zap.String("ip", ip))
		writeJSON(w, logger, api.StatusResponse{Status: api.StatusRecorded, IP: &ip})
	}
}

func (s *Server) handleRemoveIP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ip := requestIP(r)
		s.devices.Remove(ip)
		logger.Info("device removed", zap.String("ip", ip))
		writeJSON(w, logger, api.StatusResponse{Status: api.StatusRemoved})
	}
}

func (s *Server) handleGetIPs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, api.DevicesResponse{Devices: s.devices.List()})
	}
}

func (s *Server) handleDetectIP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, api.DetectIPResponse{IP: realip.FromRequest(r)})
	}
}

func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, err := logger.FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, s.version)
	}
}

//nolint:errcheck
func (s *Server) ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

// transfer streams the file or directory at path to the peer: metadata first,
// then binary chunks, then the completion marker. Directories are packed into
// a compressed tar archive.
func (s *Server) transfer(ctx context.Context, peer *Peer, path string, logger *zap.Logger) error {
	name, size, r, err := open(path)
	if err != nil {
		// nothing was announced yet, the receiver stays idle
		logger.Error("opening offered file", zap.String("path", path), zap.Error(err))
		return nil
	}
	defer r.Close()

	logger = logger.With(zap.String("file", name), zap.Int64("size", size))
	logger.Info("starting transfer")
	if err := peer.sc.WriteMsg(ctx, signal.Metadata{Filename: name, Filesize: size}); err != nil {
		return fmt.Errorf("sending metadata: %w", err)
	}

	buf := make([]byte, s.chunkSize)
	var sent int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if err := peer.ws.Write(ctx, signal.Binary(buf[:n])); err != nil {
				return fmt.Errorf("sending chunk at offset %d: %w", sent, err)
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := peer.sc.WriteMsg(ctx, signal.TransferComplete{}); err != nil {
		return fmt.Errorf("sending transfer completion: %w", err)
	}
	logger.Info("transfer completed", zap.Int64("sent", sent))
	return nil
}

// open resolves what is sent for path. Directories are packed first, the
// returned closer removes the temporary archive.
func open(path string) (string, int64, io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, nil, err
	}
	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return "", 0, nil, err
		}
		return info.Name(), info.Size(), f, nil
	}
	archive, size, err := file.Pack(path)
	if err != nil {
		return "", 0, nil, err
	}
	return info.Name() + file.ArchiveExt, size, &tempFile{archive}, nil
}

type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	os.Remove(t.Name())
	return err
}

// store writes an upload into the upload directory, replacing any previous
// upload of the same name.
func (s *Server) store(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	picker := storage.DirPicker{Dir: s.uploadDir, Overwrite: true}
	dst, err := picker.Pick(ctx, name)
	if err != nil {
		return "", 0, err
	}
	w := storage.NewStreamingWriter(dst)
	buf := make([]byte, s.chunkSize)
	var n int64
	for {
		m, err := r.Read(buf)
		if m > 0 {
			if err := w.Write(ctx, buf[:m]); err != nil {
				w.Abort() //nolint:errcheck
				return "", n, err
			}
			n += int64(m)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Abort() //nolint:errcheck
			return "", n, err
		}
	}
	path, err := w.Close(ctx)
	return path, n, err
}

// requestIP is the address given in the ip query parameter, or the client address.
func requestIP(r *http.Request) string {
	if ip := r.URL.Query().Get("ip"); ip != "" {
		return ip
	}
	return realip.FromRequest(r)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encoding response", zap.Error(err))
	}
}
