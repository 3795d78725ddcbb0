package handlers

import (
	"net/http"

	"github.com/upb/corbado-session-sdk/app"
	"github.com/upb/corbado-session-sdk/middleware"
	"github.com/upb/corbado-session-sdk/utils"
)

// ValidateSessionRequest is the body of POST /api/v1/sessions/validate
type ValidateSessionRequest struct {
	Token string `json:"token" validate:"required"`
}

// ValidateSessionResponse mirrors session.Result
type ValidateSessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	UserID        string           `json:"user_id,omitempty"`
	FullName      string           `json:"full_name,omitempty"`
	Error         *ValidationIssue `json:"error,omitempty"`
}

// ValidationIssue describes a rejection without exposing the token
type ValidationIssue struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ValidateSessionHandler validates a token posted in the body, or the token the request
// itself carries when the body is empty.
func ValidateSessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateSessionRequest
		if r.ContentLength != 0 {
			if err := utils.ReadJSON(r, &req); err != nil {
				_ = utils.WriteBadRequest(w, err.Error(), nil)
				return
			}
		} else {
			req.Token = deps.SessionMiddleware.ExtractToken(r)
		}

		if err := utils.ValidateStruct(&req); err != nil {
			_ = utils.WriteBadRequest(w, "token is required", map[string]interface{}{
				"fields": utils.GetValidationFields(err),
			})
			return
		}

		result := deps.Validator.ValidateToken(r.Context(), req.Token)

		response := ValidateSessionResponse{
			Authenticated: result.Authenticated,
			UserID:        result.UserID,
			FullName:      result.FullName,
		}
		status := http.StatusOK
		if result.Err != nil {
			status = http.StatusUnauthorized
			response.Error = &ValidationIssue{Kind: result.Kind().String(), Message: result.Err.Message}
		}

		_ = utils.WriteJSON(w, status, response)
	}
}

// CurrentUserHandler returns the user authenticated by RequireSession
func CurrentUserHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r.Context())
		if !ok {
			_ = utils.WriteUnauthorized(w, "", nil)
			return
		}
		_ = utils.WriteOK(w, user)
	}
}
