package authapi

import (
	"context"
	"log/slog"
	"net/http"

	"authd/cmd/identity"
	"authd/cmd/internal/auth/session"
)

// Service is the identity service as seen by the transport.
// *session.Service implements it.
type Service interface {
	Register(ctx context.Context, in session.RegisterInput) (identity.PublicAccount, error)
	Authenticate(ctx context.Context, email, password string) (session.AccessToken, error)
	ResolveToken(ctx context.Context, raw string) (int64, error)
	CurrentAccount(ctx context.Context, raw string) (identity.PublicAccount, error)
}

var _ Service = (*session.Service)(nil)

// Handler wires HTTP auth endpoints to the identity service.
type Handler struct {
	log *slog.Logger
	cfg Config
	svc Service
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, cfg: cfg.normalized(), svc: svc}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	p := h.cfg.PathPrefix
	mux.HandleFunc(p+"/auth/register", h.handleRegister)
	mux.HandleFunc(p+"/auth/login", h.handleLogin)
	mux.HandleFunc(p+"/auth/validate", h.handleValidate)
	mux.HandleFunc(p+"/auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if !readJSON(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	acct, err := h.svc.Register(r.Context(), session.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeServiceError(w, "auth.register", err)
		return
	}

	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !readJSON(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	tok, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, "auth.login", err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt,
	})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, ok := requireBearer(w, r)
	if !ok {
		return
	}
	id, err := h.svc.ResolveToken(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, "auth.validate", err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{AccountID: id})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, ok := requireBearer(w, r)
	if !ok {
		return
	}
	acct, err := h.svc.CurrentAccount(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, "auth.me", err)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

func requireBearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := bearerToken(r)
	if raw == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
		return "", false
	}
	return raw, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(event+".fail", "err", err)
		writeError(w, status, "server_error", "internal error")
		return
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, status, session.Code(err), session.Message(err))
}
