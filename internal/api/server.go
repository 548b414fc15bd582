package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"pulseroom/internal/auth"
	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// QueueStats reports on the persistence queue.
type QueueStats interface {
	Stats() map[string]int64
}

// maxCodeAttempts bounds room code generation when codes collide.
const maxCodeAttempts = 10

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	store    interfaces.Store
	signer   *auth.Signer
	registry Registry
	queue    QueueStats
	router   *mux.Router
	now      func() time.Time
	newCode  func() string
}

// NewServer wires the REST routes. ws, when non-nil, is mounted at /ws.
func NewServer(store interfaces.Store, signer *auth.Signer, registry Registry, queue QueueStats, ws http.Handler) *Server {
	s := &Server{
		store:    store,
		signer:   signer,
		registry: registry,
		queue:    queue,
		router:   mux.NewRouter(),
		now:      time.Now,
		newCode:  NewRoomCode,
	}

	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonMiddleware)
	api.HandleFunc("/create", s.createRoom).Methods(http.MethodPost)
	api.HandleFunc("/join", s.joinRoom).Methods(http.MethodPost)
	api.Handle("/report/{roomCode}", s.signer.RequireCredential(http.HandlerFunc(s.report))).Methods(http.MethodGet)

	s.router.Handle("/health", jsonMiddleware(http.HandlerFunc(s.healthCheck))).Methods(http.MethodGet)

	if ws != nil {
		s.router.Handle("/ws", ws).Methods(http.MethodGet)
	}
}

// ServeHTTP serves the bare routes without CORS or access logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler wraps the routes with CORS, access logging and panic recovery.
// An empty origin list allows every origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.Default()),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(handlers.CombinedLoggingHandler(log.Writer(), c.Handler(s.router)))
}

// Request/Response types for JSON serialization
type CreateRoomRequest struct {
	Nickname    string `json:"nickname"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateRoomData struct {
	RoomCode string `json:"room_code"`
	RoomID   int64  `json:"room_id"`
	Token    string `json:"token"`
	Nickname string `json:"nickname"`
}

type JoinRoomRequest struct {
	Nickname string `json:"nickname"`
	Code     string `json:"code"`
}

type JoinRoomData struct {
	Token     string `json:"token"`
	RoomCode  string `json:"room_code"`
	SessionID int64  `json:"session_id"`
}

// Response is the envelope of every API reply.
type Response struct {
	Detail string      `json:"detail"`
	Data   interface{} `json:"data"`
}

type HealthResponse struct {
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Database    string           `json:"database"`
	Connections map[string]int   `json:"connections"`
	Queue       map[string]int64 `json:"queue,omitempty"`
}

// FUNCTIONAL DISCOVERY: POST /api/create - teacher identity and room are created together
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	nickname, err := types.NormalizeNickname(req.Nickname)
	if err != nil {
		s.sendError(w, "Nickname is required.", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Untitled Room"
	}

	ctx := r.Context()
	now := s.now()

	teacher, err := s.store.CreateIdentity(ctx, nickname, types.IdentityKindTeacher, now)
	if err != nil {
		log.Printf("Failed to create teacher identity: %v", err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	room := &types.Room{
		TeacherID:   teacher.ID,
		IsActive:    true,
		StartTime:   now,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.insertRoom(ctx, room); err != nil {
		log.Printf("Failed to create room for teacher %d: %v", teacher.ID, err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	token, err := s.signer.Sign(types.Credential{
		SessionID: teacher.ID,
		Nickname:  nickname,
		Role:      types.RoleTeacher,
		RoomCode:  room.Code,
		RoomID:    room.ID,
	})
	if err != nil {
		log.Printf("Failed to sign teacher credential: %v", err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	log.Printf("Room created: code=%s id=%d teacher=%d", room.Code, room.ID, teacher.ID)
	s.sendJSON(w, http.StatusCreated, Response{
		Detail: "Room created successfully.",
		Data: CreateRoomData{
			RoomCode: room.Code,
			RoomID:   room.ID,
			Token:    token,
			Nickname: nickname,
		},
	})
}

// insertRoom draws codes until no active room holds one.
func (s *Server) insertRoom(ctx context.Context, room *types.Room) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room.Code = s.newCode()
		err := s.store.CreateRoom(ctx, room)
		if err == nil {
			return nil
		}
		if !errors.Is(err, interfaces.ErrRoomCodeInUse) {
			return err
		}
		log.Printf("Room code %s in use, drawing another", room.Code)
	}
	return fmt.Errorf("no free room code after %d attempts: %w", maxCodeAttempts, interfaces.ErrRoomCodeInUse)
}

// FUNCTIONAL DISCOVERY: POST /api/join - membership is opened later, when the socket binds
func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	nickname, err := types.NormalizeNickname(req.Nickname)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err != nil || code == "" {
		s.sendError(w, "Nickname and code are required.", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	room, err := s.store.FindRoomByCode(ctx, code)
	if err != nil && !errors.Is(err, interfaces.ErrRoomNotFound) {
		log.Printf("Failed to look up room %s: %v", code, err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}
	if room == nil || !room.IsActive {
		s.sendError(w, "Room not found or has ended.", http.StatusNotFound)
		return
	}

	student, err := s.store.CreateIdentity(ctx, nickname, types.IdentityKindStudent, s.now())
	if err != nil {
		log.Printf("Failed to create student identity: %v", err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	token, err := s.signer.Sign(types.Credential{
		SessionID: student.ID,
		Nickname:  nickname,
		Role:      types.RoleStudent,
		RoomCode:  room.Code,
		RoomID:    room.ID,
	})
	if err != nil {
		log.Printf("Failed to sign student credential: %v", err)
		s.sendError(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, Response{
		Detail: "Joined successfully.",
		Data: JoinRoomData{
			Token:     token,
			RoomCode:  room.Code,
			SessionID: student.ID,
		},
	})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   s.now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}
	if s.queue != nil {
		response.Queue = s.queue.Stats()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, Response{Detail: message, Data: struct{}{}})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
