package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/meshbridge/routeragent/pkg/auth"
	"github.com/meshbridge/routeragent/pkg/session"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server is the REST control surface: snapshot reads and directive
// delivery, both scoped to the device's owner_id via bearer token and
// pkg/auth permission checks.
type Server struct {
	manager *session.Manager
	policy  *auth.Policy
	tokens  TokenResolver
	log     *logrus.Entry
}

// NewServer builds a Server over an existing session Manager.
func NewServer(manager *session.Manager, policy *auth.Policy, tokens TokenResolver, log *logrus.Entry) *Server {
	return &Server{manager: manager, policy: policy, tokens: tokens, log: log}
}

// Routes returns the registered mux, for embedding in an *http.Server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/devices/{device_id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /v1/devices/{device_id}/directives", s.handleDirective)
	return mux
}

// authenticate resolves the request's bearer token to a permission checker
// scoped to that operator, or writes 401 and returns ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Checker, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed bearer token")
		return nil, false
	}
	username, ok := s.tokens.Resolve(r.Context(), token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unrecognized token")
		return nil, false
	}
	checker := auth.NewChecker(s.policy)
	checker.SetUser(username)
	return checker, true
}

// authorizeOwner additionally requires that the authenticated operator owns
// deviceID.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request, checker *auth.Checker, deviceID string) bool {
	owner, err := s.manager.ResolveOwner(r.Context(), deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "device not registered")
		return false
	}
	if checker.IsSuperUser() || checker.CurrentUser() == owner {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "not the owner of this device")
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
