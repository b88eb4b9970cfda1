package httperror

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ResponseError describes an unsuccessful response from a remote signing
// service
type ResponseError struct {
	Method     string
	URL        string
	Status     string
	StatusCode int
	BodyText   string
}

func (e ResponseError) Error() string {
	msg := fmt.Sprintf("HTTP error: %s %s: %s", e.Method, e.URL, e.Status)
	if e.BodyText != "" {
		msg += ": " + e.BodyText
	}
	return msg
}

func (e ResponseError) Temporary() bool {
	return statusIsTemporary(e.StatusCode)
}

// FromResponse consumes and closes the response body, returning an error
// describing the response
func FromResponse(resp *http.Response) error {
	defer resp.Body.Close()
	blob, err := io.ReadAll(io.LimitReader(resp.Body, 100000))
	if err != nil {
		return err
	}
	e := ResponseError{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		BodyText:   strings.TrimSpace(string(blob)),
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL.String()
	}
	return e
}

func statusIsTemporary(code int) bool {
	switch code {
	case http.StatusGatewayTimeout,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusInsufficientStorage,
		http.StatusInternalServerError,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
