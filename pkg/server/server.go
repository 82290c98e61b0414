package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"

	"github.com/questlabs/quest-profile/pkg/extraction"
	"github.com/questlabs/quest-profile/pkg/profile"
)

// Server exposes the pipeline to the (out-of-scope) web frontends: the
// chat-turn entry point, profile/fact/confirmation reads, accept/reject,
// and the per-user SSE event stream.
type Server struct {
	logger  *log.Logger
	service *extraction.Service
	repo    *profile.Repository
	nc      *nats.Conn
}

type Input struct {
	Logger     *log.Logger
	Service    *extraction.Service
	Repository *profile.Repository
	NatsClient *nats.Conn
}

func New(input Input) *Server {
	return &Server{
		logger:  input.Logger,
		service: input.Service,
		repo:    input.Repository,
		nc:      input.NatsClient,
	}
}

func (s *Server) Handler(allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/chat/turn", s.handleChatTurn)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Get("/facts", s.handleListFacts)
			r.Get("/confirmations", s.handleListConfirmations)
			r.Post("/confirmations/{confirmationID}/accept", s.handleAccept)
			r.Post("/confirmations/{confirmationID}/reject", s.handleReject)
			r.Get("/events", s.handleEvents)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

type chatTurnRequest struct {
	UserID            string `json:"user_id"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	Source            string `json:"source"`
}

func (s *Server) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_id and user_message are required")
		return
	}

	// Fire-and-forget: the chat response must never wait on extraction.
	s.service.OnChatTurnCompleted(req.UserID, req.UserMessage, req.AssistantResponse, req.Source)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	userProfile, err := s.repo.Get(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	// Reads never create rows; only turns and edits do.
	if userProfile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, userProfile)
}

type profileUpdateRequest struct {
	FirstName            *string  `json:"first_name"`
	CurrentCountry       *string  `json:"current_country"`
	Nationality          *string  `json:"nationality"`
	Timeline             *string  `json:"timeline"`
	BudgetMonthly        *float64 `json:"budget_monthly"`
	DestinationCountries []string `json:"destination_countries"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.repo.UpdateProfile(r.Context(), userID, profile.ProfileUpdate{
		FirstName:            req.FirstName,
		CurrentCountry:       req.CurrentCountry,
		Nationality:          req.Nationality,
		Timeline:             req.Timeline,
		BudgetMonthly:        req.BudgetMonthly,
		DestinationCountries: req.DestinationCountries,
	})
	if err != nil {
		s.logger.Error("Failed to update profile", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	facts, err := s.service.ListVerifiedFacts(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to list facts", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list facts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	confirmations, err := s.service.ListPendingConfirmations(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to list confirmations", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list confirmations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_confirmations": confirmations})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	confirmationID := chi.URLParam(r, "confirmationID")

	if err := s.service.AcceptConfirmation(r.Context(), userID, confirmationID); err != nil {
		s.logger.Error("Failed to accept confirmation", "user_id", userID, "confirmation_id", confirmationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept confirmation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": "approved"})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	confirmationID := chi.URLParam(r, "confirmationID")

	if err := s.service.RejectConfirmation(r.Context(), userID, confirmationID); err != nil {
		s.logger.Error("Failed to reject confirmation", "user_id", userID, "confirmation_id", confirmationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reject confirmation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": "rejected"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
