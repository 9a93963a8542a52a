package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/trialworks/ars-backend/internal/pkg/ctxutil"
)

func TestActorHeader(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{name: "explicit actor", header: "reviewer@site-12", want: "reviewer@site-12"},
		{name: "padded actor is trimmed", header: "  alice  ", want: "alice"},
		{name: "missing actor falls back", header: "", want: "system"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(Actor())

			var got string
			r.GET("/probe", func(c *gin.Context) {
				got = ctxutil.Actor(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tc.header != "" {
				req.Header.Set("X-Actor", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if got != tc.want {
				t.Fatalf("actor: got=%q want=%q", got, tc.want)
			}
		})
	}
}
