package handler

import (
	"net/http"

	"github.com/hitoshi/loomcart/internal/gatekeeper"
	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
)

// setSessionRequest はセッションCookie設定のリクエストボディ。
type setSessionRequest struct {
	Token     string `json:"token" validate:"required,max=8192"`
	ExpiresIn int    `json:"expires_in" validate:"gte=0"`
}

// SessionHandler はベアラートークンをHttpOnly Cookieに出し入れするハンドラー。
// トークン自体の検証は行わない。Cookieは後続のリクエストでRequestAuthenticatorが検証する。
type SessionHandler struct {
	config middleware.SessionCookieConfig
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(config middleware.SessionCookieConfig) *SessionHandler {
	return &SessionHandler{config: config}
}

// SetSession はsb_jwt Cookieを設定する。
// POST /api/session
func (h *SessionHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req setSessionRequest
	if err := gatekeeper.DecodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, model.NewBadRequestError(err.Error()))
		return
	}

	middleware.SetSessionCookie(w, req.Token, req.ExpiresIn, h.config)
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClearSession はsb_jwt Cookieを削除する。
// POST /api/session/clear
func (h *SessionHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w, h.config)
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
