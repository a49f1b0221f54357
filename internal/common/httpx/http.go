// Package httpx provides HTTP request/response helpers shared by the
// gateway's HTTP and MCP surfaces. Every response body carries an explicit
// ok/error flag; clients are expected to check the body rather than the
// transport status.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// GetRequestData parses a JSON request body into data. Only POST and PUT
// carry bodies in this API.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		return ErrUnableToParseReqData()
	}
	return nil
}

// Response represents an HTTP response with configurable status code and
// content type.
type Response struct {
	StatusCode  int
	Response    any
	ContentType string
}

// RequestHandler is the handler signature used by all datagate API routes.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler into an http.HandlerFunc with
// standardized error handling. Application errors surface their status code
// and full message chain; anything else becomes a generic application error.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			switch e := err.(type) {
			case *Error:
				e.Send(w)
			case apperrors.Error:
				statusCode := e.StatusCode()
				if statusCode == 0 {
					statusCode = http.StatusInternalServerError
				}
				(&Error{StatusCode: statusCode, Description: e.ErrorAll()}).Send(w)
			default:
				ErrApplicationError(err.Error()).Send(w)
			}
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		if rsp.ContentType == "" {
			rsp.ContentType = "application/json"
		}
		switch rsp.ContentType {
		case "application/json":
			SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response)
		case "text/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(rsp.StatusCode)
			w.Write([]byte(rsp.Response.(string)))
		default:
			ErrApplicationError("unsupported response type").Send(w)
		}
	}
}
