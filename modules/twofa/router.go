package twofa

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router mounts the module's HTTP surface:
//
//	GET  /enrollment/callback - authenticator redirect callback (shape one)
//	POST /enrollment/finalize - confirmation-page finalize (shape two)
//	POST /verify              - login-time code verification
//
// The callback endpoint answers with redirects because its caller is a
// browser mid-flight; the other two speak JSON.
func Router(coordinator *Coordinator, verifier *VerificationService) chi.Router {
	r := chi.NewRouter()

	r.Route("/enrollment", func(enrollment chi.Router) {
		enrollment.Get("/callback", handleCallback(coordinator))
		enrollment.Post("/finalize", handleFinalize(coordinator))
	})
	r.Post("/verify", handleVerify(verifier))

	return r
}

func handleCallback(coordinator *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := ParseCallbackQuery(r.URL.Query())
		result := coordinator.HandleCallback(r.Context(), params)
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

func handleFinalize(coordinator *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FinalizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, ErrValidation)
			return
		}

		token, err := coordinator.Finalize(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, jsonResponse{
			Success: true,
			Data: map[string]any{
				"status":      string(token.Status),
				"completedAt": token.CompletedAt,
			},
		})
	}
}

// verifyRequest carries the login verification body: the code alone for a
// session-bound check (user id supplied by upstream auth middleware via
// header), or email plus code for the session-less variant.
type verifyRequest struct {
	Email    string `json:"email"`
	TOTPCode string `json:"totpCode"`
}

func handleVerify(verifier *VerificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, ErrValidation)
			return
		}

		identity := Identity{Email: req.Email}
		// Upstream auth middleware identifies session-bound callers.
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			identity = Identity{UserID: userID}
		}
		if identity.empty() {
			writeError(w, ErrAuthRequired)
			return
		}

		if err := verifier.VerifyLoginCode(r.Context(), identity, req.TOTPCode); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, jsonResponse{Success: true})
	}
}
