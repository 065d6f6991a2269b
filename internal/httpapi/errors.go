package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"apitask/internal/storage"
	"apitask/internal/task/model"
	logx "apitask/pkg/logx"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func ok(c echo.Context, code int, data any) error {
	return c.JSON(code, envelope{Data: data})
}

// statusOf maps an error to its HTTP status and wire kind.
func statusOf(err error) (int, model.Kind) {
	if errors.Is(err, storage.ErrReportNotFound) {
		return http.StatusNotFound, model.KindNotFound
	}
	switch k := model.KindOf(err); k {
	case model.KindValidation:
		return http.StatusBadRequest, k
	case model.KindStateConflict:
		return http.StatusConflict, k
	case model.KindNotFound:
		return http.StatusNotFound, k
	case model.KindSchedulerInternal:
		return http.StatusInternalServerError, k
	default:
		return http.StatusInternalServerError, model.KindInternal
	}
}

// errorHandler renders every error in the envelope. echo errors keep their
// status; internal errors hide their message.
func errorHandler(log logx.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code int
			body errorBody
		)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			body.Kind = kindForStatus(code)
			if msg, ok := he.Message.(string); ok {
				body.Message = msg
			} else {
				body.Message = http.StatusText(code)
			}
		} else {
			var kind model.Kind
			code, kind = statusOf(err)
			body.Kind = string(kind)
			body.Message = err.Error()
			if code >= http.StatusInternalServerError {
				log.Error("request failed",
					logx.String("method", c.Request().Method),
					logx.String("path", c.Path()),
					logx.String("request_id", requestID(c)),
					logx.Err(err),
				)
				if kind == model.KindInternal {
					body.Message = "internal error"
				}
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, envelope{Error: &body})
		}
		if werr != nil {
			log.Debug("error response write failed", logx.Err(werr))
		}
	}
}

func kindForStatus(code int) string {
	switch {
	case code == http.StatusNotFound:
		return string(model.KindNotFound)
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code == http.StatusUnauthorized:
		return "unauthorized"
	case code >= 400 && code < 500:
		return string(model.KindValidation)
	default:
		return string(model.KindInternal)
	}
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
