package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

type registerRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6,max=255"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=255"`
}

type verifyEmailRequest struct {
	Code string `json:"code" validate:"required,max=255"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type resetPasswordRequest struct {
	Password         string `json:"password" validate:"required,min=6,max=255"`
	VerificationCode string `json:"verificationCode" validate:"required,max=255"`
}

type loginResponse struct {
	Message     string         `json:"message"`
	User        *authcore.User `json:"user"`
	MFARequired bool           `json:"mfaRequired"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.svc.Register(r.Context(), authcore.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"data":    user,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{
			Message:     "Verify MFA Authentication",
			MFARequired: true,
		})
		return
	}

	h.setTokens(w, res.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    res.User,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil || c.Value == "" {
		writeMessage(w, http.StatusUnauthorized, authcore.CodeOf(authcore.ErrTokenMissing), "Refresh token missing")
		return
	}

	res, err := h.svc.Refresh(r.Context(), c.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.setAccess(w, res.AccessToken, res.AccessExpiresAt)
	if res.Rotated {
		h.cookies.setRefresh(w, res.RefreshToken, res.RefreshExpiresAt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Refresh access token successful"})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.svc.VerifyEmail(r.Context(), req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Email verified successfully"})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Password reset email sent",
		"resetLinkSent": res.ResetLinkSent,
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Password, req.VerificationCode); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Reset Password successfully"})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), p.SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "User logout successfully"})
}

func (h *Handler) setTokens(w http.ResponseWriter, t *authcore.TokenPair) {
	h.cookies.setAccess(w, t.AccessToken, t.AccessExpiresAt)
	h.cookies.setRefresh(w, t.RefreshToken, t.RefreshExpiresAt)
}
