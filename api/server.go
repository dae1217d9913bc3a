package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/startuphub/callhub/pkg/signaling"
)

const clientIDHeader = "X-Client-ID"

// JoinPayload is the body of POST /rooms/{roomID}/join.
type JoinPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// LeavePayload is the body of POST /rooms/{roomID}/leave.
type LeavePayload struct {
	UserID string `json:"user_id"`
}

// OfferPayload is the body of POST /signals/offer. The sender is identified
// by the X-Client-ID header.
type OfferPayload struct {
	ReceiverID string                    `json:"receiver_id"`
	Offer      webrtc.SessionDescription `json:"offer"`
}

// AnswerPayload is the body of POST /signals/answer.
type AnswerPayload struct {
	ReceiverID string                    `json:"receiver_id"`
	Answer     webrtc.SessionDescription `json:"answer"`
}

// CandidatePayload is the body of POST /signals/candidate.
type CandidatePayload struct {
	ReceiverID string                  `json:"receiver_id"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

// OffersResponse is returned by GET /signals/offers.
type OffersResponse struct {
	Offers []signaling.OfferEnvelope `json:"offers"`
}

// AnswersResponse is returned by GET /signals/answers.
type AnswersResponse struct {
	Answers []signaling.AnswerEnvelope `json:"answers"`
}

// CandidatesResponse is returned by GET /signals/candidates.
type CandidatesResponse struct {
	Candidates []signaling.CandidateEnvelope `json:"candidates"`
}

// ParticipantsResponse is returned by GET /rooms/{roomID}/participants.
type ParticipantsResponse struct {
	Participants []signaling.Participant `json:"participants"`
}

// Server exposes a signaling Hub over the polling HTTP surface browser
// clients use when no persistent socket is available. Poll endpoints drain
// the caller's pending queue, so every message is delivered at most once.
type Server struct {
	hub *signaling.Hub
	mux *http.ServeMux
}

// NewServer creates the HTTP surface over the given hub.
func NewServer(hub *signaling.Hub) *Server {
	s := &Server{hub: hub, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP lets Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /rooms/{roomID}/join", s.handleJoin)
	s.mux.HandleFunc("POST /rooms/{roomID}/leave", s.handleLeave)
	s.mux.HandleFunc("GET /rooms/{roomID}/participants", s.handleParticipants)
	s.mux.HandleFunc("POST /signals/offer", s.handleSendOffer)
	s.mux.HandleFunc("POST /signals/answer", s.handleSendAnswer)
	s.mux.HandleFunc("POST /signals/candidate", s.handleSendCandidate)
	s.mux.HandleFunc("GET /signals/offers", s.handlePollOffers)
	s.mux.HandleFunc("GET /signals/answers", s.handlePollAnswers)
	s.mux.HandleFunc("GET /signals/candidates", s.handlePollCandidates)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var payload JoinPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		http.Error(w, "invalid join payload", http.StatusBadRequest)
		return
	}
	roomID := r.PathValue("roomID")
	s.hub.Join(roomID, payload.UserID, payload.Username)
	slog.Info("user joined room", "room", roomID, "user", payload.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var payload LeavePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		http.Error(w, "invalid leave payload", http.StatusBadRequest)
		return
	}
	roomID := r.PathValue("roomID")
	s.hub.Leave(roomID, payload.UserID)
	slog.Info("user left room", "room", roomID, "user", payload.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	participants := s.hub.Participants(r.PathValue("roomID"), userID)
	writeJSON(w, ParticipantsResponse{Participants: participants})
}

func (s *Server) handleSendOffer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	var payload OfferPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ReceiverID == "" {
		http.Error(w, "invalid offer payload", http.StatusBadRequest)
		return
	}
	s.hub.PushOffer(senderID, payload.ReceiverID, payload.Offer)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendAnswer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	var payload AnswerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ReceiverID == "" {
		http.Error(w, "invalid answer payload", http.StatusBadRequest)
		return
	}
	s.hub.PushAnswer(senderID, payload.ReceiverID, payload.Answer)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendCandidate(w http.ResponseWriter, r *http.Request) {
	senderID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	var payload CandidatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ReceiverID == "" {
		http.Error(w, "invalid candidate payload", http.StatusBadRequest)
		return
	}
	s.hub.PushCandidate(senderID, payload.ReceiverID, payload.Candidate)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePollOffers(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	writeJSON(w, OffersResponse{Offers: s.hub.DrainOffers(receiverID)})
}

func (s *Server) handlePollAnswers(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	writeJSON(w, AnswersResponse{Answers: s.hub.DrainAnswers(receiverID)})
}

func (s *Server) handlePollCandidates(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := s.senderID(w, r)
	if !ok {
		return
	}
	writeJSON(w, CandidatesResponse{Candidates: s.hub.DrainCandidates(receiverID)})
}

// senderID reads the caller identity header, rejecting requests without it.
func (s *Server) senderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(clientIDHeader)
	if id == "" {
		http.Error(w, "missing "+clientIDHeader+" header", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
