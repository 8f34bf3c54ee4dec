package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"slices"

	"github.com/AaronLay10/StoryEngine/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

type account struct {
	user string
	pass string
	role Role
}

// authConfig holds the console accounts. Auth is on only when an admin
// account exists.
type authConfig struct {
	accounts []account
}

var auth *authConfig

// roleEnv maps each role to its credential variables.
var roleEnv = []struct {
	role       Role
	user, pass string
}{
	{RoleAdmin, "STORYENGINE_ADMIN_USER", "STORYENGINE_ADMIN_PASS"},
	{RoleOperator, "STORYENGINE_OPERATOR_USER", "STORYENGINE_OPERATOR_PASS"},
}

// InitAuth loads the operator console credentials. Each variable honours the
// *_FILE convention. Without admin credentials authentication is disabled.
// The player surface (/, /ws/render, /intent, /export) is never guarded.
func InitAuth() error {
	cfg := &authConfig{}
	for _, re := range roleEnv {
		secrets, err := config.ResolveSecrets(re.user, re.pass)
		if err != nil {
			return err
		}
		user, pass := secrets[re.user], secrets[re.pass]
		if user == "" || pass == "" {
			continue
		}
		cfg.accounts = append(cfg.accounts, account{user: user, pass: pass, role: re.role})
	}
	auth = cfg
	if IsAuthEnabled() {
		log.Printf("API auth enabled (%d accounts)", len(cfg.accounts))
	}
	return nil
}

func IsAuthEnabled() bool {
	if auth == nil {
		return false
	}
	return slices.ContainsFunc(auth.accounts, func(a account) bool { return a.role == RoleAdmin })
}

// authenticate returns the caller's role, or "" for bad credentials. With
// auth disabled every caller is admin.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	for _, a := range auth.accounts {
		if secureCompare(user, a.user) && secureCompare(pass, a.pass) {
			return a.role
		}
	}
	return ""
}

// secureCompare compares in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Story Engine"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		switch {
		case role == "":
			requireAuth(w)
		case slices.Contains(allowedRoles, role):
			handler(w, r)
		default:
			http.Error(w, "Forbidden", http.StatusForbidden)
		}
	}
}

func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
