package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"

	"crosswatch/internal/services"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error     string            `json:"error"`
	ID        string            `json:"id,omitempty"`
	Details   *string           `json:"details,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func encode(ctx context.Context, w http.ResponseWriter, status int, v any) error {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	return enc.Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// statusOf maps service errors to HTTP status codes
func statusOf(err error) (int, errorBody) {
	var (
		notFound     *services.NotFoundError
		badRequest   *services.BadRequestError
		conflict     *services.ConflictError
		unauthorized *services.UnauthorizedError
		unavailable  *services.UnavailableError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorBody{Error: notFound.Message, ID: notFound.ID}
	case errors.As(err, &badRequest):
		return http.StatusBadRequest, errorBody{Error: badRequest.Message, Details: badRequest.Details}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorBody{Error: conflict.Message, ID: conflict.ID}
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, errorBody{Error: unauthorized.Message}
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, errorBody{Error: unavailable.Message, Checks: unavailable.Checks}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(middleware.RequestIDKey).(string)
	return id
}

func parseQuery(r *http.Request) (*services.EventQuery, error) {
	q := r.URL.Query()
	query := &services.EventQuery{
		SourceID:  q.Get("source"),
		SessionID: q.Get("session"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, &services.BadRequestError{Message: "limit must be an integer"}
		}
		query.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, &services.BadRequestError{Message: "since must be an RFC 3339 timestamp"}
		}
		query.Since = &since
	}
	return query, nil
}
