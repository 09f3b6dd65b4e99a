package errutil

import "net/http"

type CoreStatus string

const (
	StatusBadRequest         CoreStatus = "bad_request"
	StatusUnauthorized       CoreStatus = "unauthorized"
	StatusForbidden          CoreStatus = "forbidden"
	StatusNotFound           CoreStatus = "not_found"
	StatusTooManyRequests    CoreStatus = "too_many_requests"
	StatusInternal           CoreStatus = "internal"
	StatusServiceUnavailable CoreStatus = "service_unavailable"
	StatusUnknown            CoreStatus = "unknown"
)

// HTTPStatus converts the CoreStatus to its HTTP status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
