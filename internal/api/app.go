package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/09OndaProject/onda-chat/internal/chat"
	"github.com/09OndaProject/onda-chat/internal/config"
	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type ChatApp struct {
	log        *log.Logger
	db         database.ChatRepository
	srv        *http.Server
	cs         *chat.ChatServer
	resolver   *chat.TokenResolver
	signingKey []byte
	sid        *shortid.Shortid
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer,
	resolver *chat.TokenResolver, db database.ChatRepository, cfg *config.Config) (*ChatApp, error) {

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("init shortid: %w", err)
	}

	s := &ChatApp{
		log:        logger,
		db:         db,
		cs:         cs,
		resolver:   resolver,
		signingKey: cfg.SigningKey,
		sid:        sid,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("POST /api/chat/meets/{meet_id}/join", s.authMiddleware(s.joinMeetChat))
	mux.Handle("GET /api/chat/rooms/{room_id}/messages", s.authMiddleware(s.listMessages))
	mux.HandleFunc("GET /ws/chat/{room_id}", cs.ServeWS)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s, nil
}

func (s *ChatApp) generateShortId() (string, error) {
	return s.sid.Generate()
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
