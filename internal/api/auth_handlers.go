package api

import (
	"net/http"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
)

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req model.Credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, user, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.AuthSession{
		Token: token,
		User:  model.Identity{UserID: user.ID, Email: user.Email},
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req model.Credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, user, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AuthSession{
		Token: token,
		User:  model.Identity{UserID: user.ID, Email: user.Email},
	})
}

// verify reports who the bearer token belongs to.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, model.Identity{
		UserID:  claims.UserID,
		Email:   claims.Email,
		Purpose: claims.Purpose,
	})
}

func (s *Server) requestRecovery(w http.ResponseWriter, r *http.Request) {
	var req model.RecoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	expires, err := s.auth.RequestRecovery(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, model.RecoveryChallenge{ExpiresAt: expires})
}

func (s *Server) verifyRecovery(w http.ResponseWriter, r *http.Request) {
	var req model.RecoveryCheck
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.auth.VerifyRecovery(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RecoverySession{Token: token})
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req model.PasswordChange
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.auth.UpdatePassword(r.Context(), claimsFrom(r.Context()), req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendMagicLink(w http.ResponseWriter, r *http.Request) {
	var req model.MagicLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.auth.SendMagicLink(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) consumeMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, apperr.New(apperr.Validation, "missing token"))
		return
	}
	session, user, err := s.auth.ConsumeMagicLink(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AuthSession{
		Token: session,
		User:  model.Identity{UserID: user.ID, Email: user.Email},
	})
}
