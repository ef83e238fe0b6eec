package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blockdoc/internal/domain"
	"blockdoc/internal/service"
	"blockdoc/internal/wire"
)

const maxFrameSize = 4 << 20

// Server exposes documents over HTTP and websocket.
//
//	GET    /health
//	GET    /metrics                          (when a metrics handler is set)
//	GET    /api/documents
//	GET    /api/documents/{docId}
//	DELETE /api/documents/{docId}
//	POST   /api/documents/{docId}/undo
//	POST   /api/documents/{docId}/redo
//	POST   /api/documents/{docId}/checkpoint
//	GET    /ws/{docId}                       replication feed (CBOR frames)
type Server struct {
	svc      *service.DocumentService
	hub      *Hub
	log      zerolog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(svc *service.DocumentService, hub *Hub, log zerolog.Logger, metrics http.Handler) *Server {
	s := &Server{
		svc: svc,
		hub: hub,
		log: log.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.Use(s.logRequests)
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/documents", s.handleListDocuments).Methods("GET")
	api.HandleFunc("/documents/{docId}", s.handleGetDocument).Methods("GET")
	api.HandleFunc("/documents/{docId}", s.handleDeleteDocument).Methods("DELETE")
	api.HandleFunc("/documents/{docId}/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/documents/{docId}/redo", s.handleRedo).Methods("POST")
	api.HandleFunc("/documents/{docId}/checkpoint", s.handleCheckpoint).Methods("POST")

	router.HandleFunc("/ws/{docId}", s.handleWebsocket).Methods("GET")
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	s.log.Info().Str("addr", addr).Msg("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
	})
}

// ── HTTP handlers ──────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.List(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), mux.Vars(r)["docId"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), mux.Vars(r)["docId"]); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Undo(r.Context(), mux.Vars(r)["docId"])
	s.respondChange(w, c, err)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Redo(r.Context(), mux.Vars(r)["docId"])
	s.respondChange(w, c, err)
}

func (s *Server) respondChange(w http.ResponseWriter, c *domain.Change, err error) {
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"change": c})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docId"]
	if _, err := s.svc.Open(r.Context(), docID); err != nil {
		s.respondErr(w, err)
		return
	}
	res, err := s.svc.Checkpoint(r.Context(), docID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCheckpointRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// ── Websocket feed ─────────────────────────────────────────

// handleWebsocket subscribes a client to a document. The client is added to
// the hub before the hello snapshot is taken, so it may receive changes it
// already has; those carry a version not above the hello's and are skipped
// by the client.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docId"]
	ctx := r.Context()
	if _, err := s.svc.Open(ctx, docID); err != nil {
		s.respondErr(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(uuid.New().String(), docID, conn)
	s.hub.add(c)
	go c.writePump()
	defer s.hub.remove(c)

	s.sendHello(ctx, c)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("client", c.id).Msg("websocket closed")
			}
			return
		}
		f, err := wire.DecodeFrame(data)
		if err != nil {
			s.reply(c, &wire.Frame{Type: wire.FrameError, DocID: docID, Error: err.Error()})
			continue
		}
		s.hub.obs.Frame("in", f.Type)
		s.handleFrame(ctx, c, f)
	}
}

func (s *Server) handleFrame(ctx context.Context, c *client, f *wire.Frame) {
	switch f.Type {
	case wire.FrameChange:
		if f.Change == nil {
			s.reply(c, &wire.Frame{Type: wire.FrameError, DocID: c.docID, Error: "change frame without change"})
			return
		}
		change, err := s.svc.ApplyRemote(ctx, c.docID, f.Change.Name, f.Change.Ops)
		if err != nil {
			s.reply(c, &wire.Frame{Type: wire.FrameError, DocID: c.docID, Error: err.Error()})
			return
		}
		ack := &wire.Frame{Type: wire.FrameAck, DocID: c.docID, ClientID: c.id}
		if change != nil {
			ack.Version = change.Version
		}
		s.reply(c, ack)
	case wire.FrameSnapshot:
		s.sendHello(ctx, c)
	default:
		s.reply(c, &wire.Frame{Type: wire.FrameError, DocID: c.docID, Error: "unexpected frame " + f.Type})
	}
}

func (s *Server) sendHello(ctx context.Context, c *client) {
	snap, err := s.svc.Snapshot(ctx, c.docID)
	if err != nil {
		s.reply(c, &wire.Frame{Type: wire.FrameError, DocID: c.docID, Error: err.Error()})
		return
	}
	s.reply(c, &wire.Frame{Type: wire.FrameHello, DocID: c.docID, ClientID: c.id, Version: snap.Version, Snapshot: snap})
}

func (s *Server) reply(c *client, f *wire.Frame) {
	b, err := wire.EncodeFrame(f)
	if err != nil {
		s.log.Error().Err(err).Msg("encode reply")
		return
	}
	if !c.offer(b) {
		s.hub.remove(c)
		return
	}
	s.hub.obs.Frame("out", f.Type)
}
