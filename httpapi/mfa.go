package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

type mfaVerifyRequest struct {
	Code      string `json:"code" validate:"required,len=6"`
	SecretKey string `json:"secretKey" validate:"required,min=1,max=255"`
}

type mfaVerifyLoginRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,len=6"`
}

type mfaStatusResponse struct {
	Message         string               `json:"message"`
	UserPreferences authcore.Preferences `json:"userPreferences"`
}

func (h *Handler) mfaSetup(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	res, err := h.svc.BeginMFASetup(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.AlreadyEnabled {
		writeJSON(w, http.StatusOK, map[string]any{"message": "MFA already enabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Scan the QR code or use the setup key",
		"secret":     res.Secret,
		"qrImageUrl": res.QRImageURL,
	})
}

func (h *Handler) mfaVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	status, err := h.svc.ConfirmMFASetup(r.Context(), p, req.Code, req.SecretKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "MFA setup completed successfully"
	if !status.Changed {
		msg = "MFA is already enabled"
	}
	writeJSON(w, http.StatusOK, mfaStatusResponse{Message: msg, UserPreferences: status.User.Preferences})
}

func (h *Handler) mfaRevoke(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	status, err := h.svc.RevokeMFA(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "MFA revoked successfully"
	if !status.Changed {
		msg = "MFA is not enabled"
	} else {
		// Every session is gone, including this one.
		h.cookies.clear(w)
	}
	writeJSON(w, http.StatusOK, mfaStatusResponse{Message: msg, UserPreferences: status.User.Preferences})
}

func (h *Handler) mfaVerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.VerifyMFALogin(r.Context(), req.Email, req.Code, r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setTokens(w, res.Tokens)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "verified and login successfully",
		"user":    res.User,
	})
}
