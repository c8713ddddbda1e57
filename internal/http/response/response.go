package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type APIError struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
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

// RespondErr derives status and code from the error taxonomy.
func RespondErr(c *gin.Context, err error) {
	p := errors.ToPayload(err)
	if p == nil {
		p = &errors.Payload{Code: errors.CodeInternal, Message: "unknown error"}
	}
	c.JSON(StatusFor(p.Code), ErrorEnvelope{
		Error: APIError{
			Message: p.Message,
			Code:    string(p.Code),
			Details: p.Details,
		},
	})
}

func StatusFor(code errors.Code) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeExternalProvider:
		return http.StatusBadGateway
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodePartialBatchFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
