package response

import (
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trialworks/ars-backend/internal/domain/versioning"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`

	// Paths lists the document paths still in conflict when a merge is
	// rejected as unresolved, so clients can resubmit a complete
	// resolution set.
	Paths []string `json:"paths,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// HTTPStatus maps a versioning error code onto its transport status.
func HTTPStatus(code versioning.ErrorCode) int {
	switch code {
	case versioning.CodeValidation, versioning.CodeSerialization:
		return http.StatusBadRequest
	case versioning.CodeNotFound:
		return http.StatusNotFound
	case versioning.CodeConflict, versioning.CodeUnresolvedConflict:
		return http.StatusConflict
	case versioning.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case versioning.CodeRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError writes err with the status its versioning code maps
// to. Errors that never went through the versioning wrapper respond as 500.
func RespondDomainError(c *gin.Context, err error) {
	var verr *versioning.Error
	if !goerrors.As(err, &verr) {
		RespondError(c, http.StatusInternalServerError, string(versioning.CodeInternal), err)
		return
	}
	msg := verr.Message
	if msg == "" {
		msg = verr.Error()
	}
	c.JSON(HTTPStatus(verr.Code), ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(verr.Code),
			Paths:   verr.Paths,
		},
	})
}
