package controllers

import (
	"net/http"

	"github.com/angelmondragon/wholesale-backend/api/middleware"
	"github.com/angelmondragon/wholesale-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the identity the token resolved to.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, callerPayload(r, "private"))
	}
}

func AdminPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, callerPayload(r, "admin"))
	}
}

func callerPayload(r *http.Request, scope string) map[string]string {
	payload := map[string]string{"scope": scope, "status": "ok"}
	if userID := middleware.UserIDFromContext(r.Context()); userID != "" {
		payload["user_id"] = userID
	}
	if role := middleware.RoleFromContext(r.Context()); role != "" {
		payload["role"] = role.String()
	}
	return payload
}
