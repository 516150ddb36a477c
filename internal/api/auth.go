package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/prudhvinik1/whatsnote/internal/services"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

type loginResponse struct {
	AccountID string `json:"accountId"`
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.auth.Register(r.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			writeError(w, http.StatusConflict, "email already exists")
			return
		}
		s.logger.Error("register failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loginReq := services.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
	}
	if req.DeviceID != "" {
		deviceID, err := uuid.Parse(req.DeviceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deviceId")
			return
		}
		loginReq.DeviceID = &deviceID
	}

	resp, err := s.auth.Login(r.Context(), loginReq)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.setSessionCookie(w, resp.Token, resp.ExpiresAt)

	writeJSON(w, http.StatusOK, loginResponse{
		AccountID: resp.AccountID.String(),
		DeviceID:  resp.DeviceID.String(),
		SessionID: resp.SessionID,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := s.auth.Logout(r.Context(), claims); err != nil {
		s.logger.Warn("logout failed", zap.Error(err))
	}
	_ = s.presence.DeletePresence(r.Context(), claims.DeviceID)

	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAccount removes the account with all owned events, evicts every
// session, and closes the account's open push streams.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := s.events.PurgeAccount(r.Context(), claims.AccountID); err != nil {
		s.logger.Error("failed to purge events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "account deletion failed")
		return
	}

	if err := s.auth.DeleteAccount(r.Context(), claims.AccountID); err != nil {
		s.logger.Error("failed to delete account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "account deletion failed")
		return
	}

	s.hub.DisconnectAccount(claims.AccountID)
	_ = s.presence.DeletePresence(r.Context(), claims.DeviceID)

	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
