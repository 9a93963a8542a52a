package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/trialworks/ars-backend/internal/domain/versioning"
)

func serveDomainError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/probe", func(c *gin.Context) {
		RespondDomainError(c, err)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rec, env
}

func TestRespondDomainErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code versioning.ErrorCode
		want int
	}{
		{versioning.CodeValidation, http.StatusBadRequest},
		{versioning.CodeSerialization, http.StatusBadRequest},
		{versioning.CodeNotFound, http.StatusNotFound},
		{versioning.CodeConflict, http.StatusConflict},
		{versioning.CodeUnresolvedConflict, http.StatusConflict},
		{versioning.CodeInvariantViolation, http.StatusUnprocessableEntity},
		{versioning.CodeRetryable, http.StatusServiceUnavailable},
		{versioning.CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.code), func(t *testing.T) {
			t.Parallel()
			err := versioning.NewError(tc.code, "test.op", "boom", nil)
			rec, env := serveDomainError(t, err)

			if rec.Code != tc.want {
				t.Fatalf("status: got=%d want=%d", rec.Code, tc.want)
			}
			if env.Error.Code != string(tc.code) {
				t.Fatalf("envelope code: got=%q want=%q", env.Error.Code, tc.code)
			}
			if env.Error.Message != "boom" {
				t.Fatalf("envelope message: got=%q", env.Error.Message)
			}
		})
	}
}

func TestRespondDomainErrorCarriesConflictPaths(t *testing.T) {
	t.Parallel()

	err := versioning.NewConflictError("merge.auto", "2 conflicts need manual resolution",
		[]string{"analyses[0].method", "metadata.owner"})
	rec, env := serveDomainError(t, err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusConflict)
	}
	if len(env.Error.Paths) != 2 || env.Error.Paths[0] != "analyses[0].method" {
		t.Fatalf("paths not carried: %#v", env.Error.Paths)
	}
}

func TestRespondDomainErrorUnwrappedErrorIs500(t *testing.T) {
	t.Parallel()

	rec, env := serveDomainError(t, errors.New("disk on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
	if env.Error.Code != string(versioning.CodeInternal) {
		t.Fatalf("envelope code: got=%q", env.Error.Code)
	}
}

func TestRespondDomainErrorFindsWrappedCode(t *testing.T) {
	t.Parallel()

	inner := versioning.NewError(versioning.CodeNotFound, "version.get", "version not found", nil)
	wrapped := versioning.Wrap(versioning.CodeInternal, "outer.op", inner)

	// errors.As walks the chain; the outermost versioning error wins.
	rec, _ := serveDomainError(t, wrapped)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
}
