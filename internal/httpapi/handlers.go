package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/role"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

func principal(w http.ResponseWriter, r *http.Request) (*poaAuth.Principal, bool) {
	p, ok := poaAuth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return p, ok
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req poaAuth.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) completeSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PendingHandle string `json:"pending_handle"`
		Code          string `json:"code"`
		BackupCode    string `json:"backup_code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.CompleteSecondFactor(r.Context(), req.PendingHandle, poaAuth.SecondFactor{
		Code:       req.Code,
		BackupCode: req.BackupCode,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.engine.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": msg})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req poaAuth.AcceptInvitationRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.AcceptInvitation(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.engine.Logout(r.Context(), p.IdentityID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := s.engine.GetProfile(r.Context(), p.IdentityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), p.IdentityID, req.CurrentPassword, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totpSetup(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	setup, err := s.engine.GenerateTOTPSetup(r.Context(), p.IdentityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) totpEnable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.EnableTOTP(r.Context(), p.IdentityID, req.Code); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totpDisable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.DisableTOTP(r.Context(), p.IdentityID, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totpRegenerate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	codes, err := s.engine.RegenerateBackupCodes(r.Context(), p.IdentityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

// createInvitation invites into the caller's own company. Only a super-admin
// may name another company.
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Email     string    `json:"email"`
		Role      role.Role `json:"role"`
		CompanyID string    `json:"company_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	companyID := p.CompanyID
	if req.CompanyID != "" && req.CompanyID != companyID {
		if p.Role != role.SuperAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		companyID = req.CompanyID
	}

	inv, err := s.engine.CreateInvitation(r.Context(), poaAuth.CreateInvitationRequest{
		CompanyID: companyID,
		Email:     req.Email,
		Role:      req.Role,
		InvitedBy: p.IdentityID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// The token goes to the invitee through the notifier, never back to the inviter.
	writeJSON(w, http.StatusCreated, struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	}{inv.ID, inv.ExpiresAt})
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetIdentityActive(r.Context(), mux.Vars(r)["id"], req.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role role.Role `json:"role"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ChangeRole(r.Context(), mux.Vars(r)["id"], req.Role); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
