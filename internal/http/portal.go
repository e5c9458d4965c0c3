package http

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"campuscms/internal/model"
	"campuscms/internal/rbac"
)

// portalGuard gates navigation to role-restricted portal pages. It runs before
// the protected handler and resolves the session fresh on every request: a
// visitor without a usable session lands on this portal's login page, a
// signed-in user of another role lands on their own dashboard. A role-store
// outage is an error response, not a redirect; the visitor keeps their
// session and retries.
func (s *Server) portalGuard(required model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := s.resolveActor(r)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if target, ok := guardRedirect(actor, required); !ok {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// guardRedirect is the route guard decision. ok means render; otherwise the
// caller redirects to target. A deactivated account counts as no session.
func guardRedirect(actor *model.Actor, required model.Role) (target string, ok bool) {
	role := rbac.EffectiveRole(actor)
	if role == rbac.Anonymous {
		return loginPath(required), false
	}
	if role != required {
		return dashboardPath(role), false
	}
	return "", true
}

func loginPath(role model.Role) string {
	return "/" + string(role) + "/login"
}

func dashboardPath(role model.Role) string {
	return "/" + string(role) + "/dashboard"
}

func (s *Server) handleLoginPage(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// an already signed-in visitor goes straight to their dashboard; on
		// a store outage the form still renders, no auth decision rides on it
		if actor, err := s.resolveActor(r); err == nil && actor != nil && actor.IsActive {
			http.Redirect(w, r, dashboardPath(actor.Role), http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!doctype html>
<title>%[1]s sign in</title>
<h1>%[1]s portal</h1>
<form method="post" action="/auth/login">
  <input type="email" name="email" placeholder="email" required>
  <input type="password" name="password" placeholder="password" required>
  <button type="submit">Sign in</button>
</form>
`, role)
	}
}

func (s *Server) handleDashboard(role model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFromContext(r.Context())
		profile, err := s.store.GetProfile(r.Context(), actor.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!doctype html>
<title>%[1]s dashboard</title>
<h1>Welcome, %[2]s</h1>
<p>Signed in to the %[1]s portal.</p>
`, role, html.EscapeString(profile.DisplayName))
	}
}
