// Package httpapi adapts the cart engine to the surrounding system's HTTP
// surface. Sessions are correlated by the X-Session-Token header; identity
// arrives from the auth layer as X-User-ID / X-Credential headers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/catalog"
	"github.com/dkoval/cartsync/internal/engine"
	"github.com/dkoval/cartsync/internal/identity"
)

const (
	sessionTokenHeader = "X-Session-Token"
	userIDHeader       = "X-User-ID"
	credentialHeader   = "X-Credential"
	profileCookie      = "cartsync_profile"
)

type CartHandler struct {
	registry *engine.Registry
	tokens   *identity.TokenStore
	log      *zap.Logger
}

func NewCartHandler(registry *engine.Registry, tokens *identity.TokenStore, log *zap.Logger) *CartHandler {
	return &CartHandler{registry: registry, tokens: tokens, log: log}
}

func NewRouter(h *CartHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cartsync"})
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{productID}", h.UpdateQuantity)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Put("/guest", h.SetGuestInfo)
		r.Post("/activity", h.Activity)
		r.Post("/checkout/confirm", h.ConfirmCheckout)
	})

	return r
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type guestInfoRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// session resolves the caller's session: the token from the header (minted
// when absent and echoed back), the engine for it, and the identity state
// carried by the auth headers.
func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	token := r.Header.Get(sessionTokenHeader)
	if token == "" {
		token = h.tokenFromProfile(w, r)
	}
	w.Header().Set(sessionTokenHeader, token)

	session, err := h.registry.Get(r.Context(), token)
	if err != nil {
		h.log.Error("failed to materialize session", zap.String("session_token", token), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "session_unavailable", "failed to initialize cart session")
		return nil, false
	}

	if userID := r.Header.Get(userIDHeader); userID != "" {
		session.Identity.SetUser(userID, r.Header.Get(credentialHeader))
	} else {
		session.Identity.SetAnonymous()
	}

	return session, true
}

// tokenFromProfile correlates a browser profile (cookie) to its stable
// session token, minting both on first contact. The token survives cart
// clears and sign-ins; it only dies with the profile cookie.
func (h *CartHandler) tokenFromProfile(w http.ResponseWriter, r *http.Request) string {
	profileID := ""
	if c, err := r.Cookie(profileCookie); err == nil {
		profileID = c.Value
	}
	if profileID == "" {
		profileID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     profileCookie,
			Value:    profileID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	token, err := h.tokens.Ensure(r.Context(), profileID)
	if err != nil {
		h.log.Warn("session token store unavailable, minting ephemeral token", zap.Error(err))
		return uuid.NewString()
	}
	return token
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Engine.Summary())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	sum, err := session.Engine.AddItem(r.Context(), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	productID := chi.URLParam(r, "productID")
	sum, err := session.Engine.UpdateQuantity(r.Context(), productID, req.VariantID, req.Quantity)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "productID")
	variantID := r.URL.Query().Get("variant")

	sum, err := session.Engine.RemoveItem(r.Context(), productID, variantID)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	sum, err := session.Engine.Clear(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) SetGuestInfo(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req guestInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_email", "email is required")
		return
	}

	sum, err := session.Engine.SetGuestInfo(r.Context(), req.Email, req.Phone)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) Activity(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Engine.Activity()
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	sum, err := session.Engine.ConfirmCheckout(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "remote_unconfirmed", "cart could not be confirmed with the remote store")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *CartHandler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
	case errors.Is(err, engine.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "item is not in the cart")
	case errors.Is(err, catalog.ErrProductUnavailable):
		respondError(w, http.StatusUnprocessableEntity, "product_unavailable", "product is unavailable")
	default:
		h.log.Error("cart operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "cart operation failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, details string) {
	respondJSON(w, status, errorResponse{Error: http.StatusText(status), Code: code, Details: details})
}
