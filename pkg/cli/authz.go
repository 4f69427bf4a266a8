package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/quartermaster/pkg/rbac"
)

// authzHandlers answers capability checks against the policy in effect, so a
// watched policy file applies to the next request
type authzHandlers struct {
	checker *rbac.Checker
}

func (h *authzHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/authz/policy", h.getPolicy).Methods(http.MethodGet)
	router.HandleFunc("/authz/projects/{project}/can/{capability}", h.can).Methods(http.MethodGet)
}

type policyResponse struct {
	Fingerprint  string      `json:"fingerprint"`
	Capabilities rbac.Policy `json:"capabilities"`
}

// getPolicy handles GET /authz/policy
func (h *authzHandlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	policy := h.checker.Policy()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(policyResponse{
		Fingerprint:  policy.Fingerprint(),
		Capabilities: policy,
	})
}

// can handles GET /authz/projects/{project}/can/{capability}
// Query params:
//   - login: the user to check (required)
func (h *authzHandlers) can(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	projectID, err := strconv.ParseInt(vars["project"], 10, 64)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}

	login := r.URL.Query().Get("login")
	if login == "" {
		http.Error(w, "login is required", http.StatusBadRequest)
		return
	}

	decision, err := h.checker.Can(ctx, login, projectID, rbac.Capability(vars["capability"]))
	if errors.Is(err, rbac.ErrUnknownCapability) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}
