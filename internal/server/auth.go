package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowloom/loom/internal/auth"
)

// loginRequest is the POST /api/v1/auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the minted bearer token and the authenticated
// account, minus its password hash (service.User tags that field json:"-").
type loginResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

// LoginAPI handles POST /api/v1/auth/login, the one unauthenticated route
// besides /healthz. On success it returns a bearer token good for
// cfg.JWT.ExpiryMinutes, to be sent as "Authorization: Bearer <token>" on
// every other route.
func (s *Server) LoginAPI(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		httpResponse(w, "username and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httpResponse(w, "invalid username or password", http.StatusUnauthorized)
			return
		}
		httpResponse(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	httpResponseJSON(w, loginResponse{Token: token, User: user}, http.StatusOK)
}
