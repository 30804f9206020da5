// Package fakebackend is an in-process stand-in for the chat backend. It
// serves every endpoint the client calls with canned or echoed data.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"Chatdesk/internal/backend"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

// DefaultProviders are the provider keys served when none are configured
var DefaultProviders = []string{"openai", "gemini", "deepseek"}

// ReplyFunc produces the assistant text for one chat turn. turn counts
// the messages seen on the session for that provider, starting at 1.
type ReplyFunc func(provider, message string, images []string, turn int) string

// TranscribeFunc turns received audio into a transcript
type TranscribeFunc func(audio []byte, locale string) string

type Options struct {
	// APIKey, when set, must match the x-api-key header on /chat.
	APIKey     string
	Providers  []string
	Reply      ReplyFunc
	Transcribe TranscribeFunc
	Logger     *slog.Logger
}

type user struct {
	id     int64
	email  string
	pwHash []byte
}

type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	users    map[string]*user // by email
	tokens   map[string]int64 // token -> user id
	nextUser int64
	turns    map[string]map[string]int // session -> provider -> count
}

func New(opts Options) *Server {
	if len(opts.Providers) == 0 {
		opts.Providers = DefaultProviders
	}
	if opts.Reply == nil {
		opts.Reply = EchoReply
	}
	if opts.Transcribe == nil {
		opts.Transcribe = TextTranscriber
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
		users:  make(map[string]*user),
		tokens: make(map[string]int64),
		turns:  make(map[string]map[string]int),
	}
}

// Router wires every endpoint
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"message": "chat backend is running"})
	})
	r.Get("/providers", s.handleProviders)
	r.Post("/chat", s.handleChat)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/me", s.handleMe)

	r.Get("/news/combined", s.handleNews)
	r.Get("/news/stocks", s.handleStocks)
	r.Get("/weather/combined", s.handleWeather)

	r.Get("/speech", s.handleSpeech)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, backend.ProvidersResponse{Providers: s.opts.Providers})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.opts.APIKey != "" && r.Header.Get("x-api-key") != s.opts.APIKey {
		respondDetail(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = "default"
	}

	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if !slices.Contains(s.opts.Providers, req.Provider) {
		respondDetail(w, http.StatusBadRequest, fmt.Sprintf("Provider '%s' not supported.", req.Provider))
		return
	}

	s.mu.Lock()
	perProvider, ok := s.turns[sessionID]
	if !ok {
		perProvider = make(map[string]int)
		s.turns[sessionID] = perProvider
	}
	perProvider[req.Provider]++
	turn := perProvider[req.Provider]
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, backend.ChatResponse{
		Response: s.opts.Reply(req.Provider, req.Message, req.Images, turn),
		Provider: req.Provider,
	})
}

// EchoReply answers with the message, its attachment count and the turn
func EchoReply(provider, message string, images []string, turn int) string {
	reply := fmt.Sprintf("**%s** (turn %d): %s", provider, turn, message)
	if len(images) > 0 {
		reply += fmt.Sprintf("\n\n_received %d image(s)_", len(images))
	}
	return reply
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req backend.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respondDetail(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	s.mu.Lock()
	if _, exists := s.users[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		respondDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.nextUser++
	u := &user{id: s.nextUser, email: req.Email, pwHash: hash}
	s.users[strings.ToLower(req.Email)] = u
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, backend.UserResponse{ID: u.id, Email: u.email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.pwHash, []byte(password)) != nil {
		respondDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u.id
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, backend.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		respondDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[strings.TrimPrefix(authz, "Bearer ")]
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	for _, u := range s.users {
		if u.id == id {
			respondJSON(w, http.StatusOK, backend.UserResponse{ID: u.id, Email: u.email})
			return
		}
	}
	respondDetail(w, http.StatusUnauthorized, "User not found")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, backend.ErrorResponse{Detail: detail})
}
