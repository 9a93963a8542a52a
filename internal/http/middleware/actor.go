package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
)

const headerActor = "X-Actor"

// Actor resolves the acting user for audit attribution. There is no
// authentication layer; callers identify themselves through X-Actor and
// anonymous requests are recorded as "system".
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(headerActor))
		if actor == "" {
			actor = ctxutil.DefaultActor
		}
		c.Request = c.Request.WithContext(ctxutil.WithActor(c.Request.Context(), actor))
		c.Set("actor", actor)
		c.Next()
	}
}
