package relay

import (
	"net/http"

	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/internal/logger"
)

func (s *Server) routes() {
	s.router.Use(logger.Middleware(s.logger))

	ws := s.router.PathPrefix("/ws").Subrouter()
	ws.Use(conn.Middleware())
	ws.HandleFunc("/connect", s.handleConnect())

	s.router.HandleFunc("/send_file", s.handleSendFile()).Methods(http.MethodPost)
	s.router.HandleFunc("/clipboard", s.handleClipboard()).Methods(http.MethodPost)
	s.router.HandleFunc("/upload", s.handleUpload()).Methods(http.MethodPost)
	s.router.HandleFunc("/record_ip", s.handleRecordIP()).Methods(http.MethodGet)
	s.router.HandleFunc("/remove_ip", s.handleRemoveIP()).Methods(http.MethodGet)
	s.router.HandleFunc("/get_ips", s.handleGetIPs()).Methods(http.MethodGet)
	s.router.HandleFunc("/detect_ip", s.handleDetectIP()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)
	s.router.HandleFunc("/ping", s.ping())
}
