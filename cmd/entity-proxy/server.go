package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/connector"
	"github.com/Sternrassler/entity-connector/pkg/endpoint"
	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/Sternrassler/entity-connector/pkg/metrics"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// requestTimeout bounds one proxied fetch, replay and full walks included.
const requestTimeout = 5 * time.Minute

type server struct {
	connector *connector.Connector
	redis     *redis.Client
	logger    zerolog.Logger
}

type pageResponse struct {
	Entity string `json:"entity"`
	pagination.PageResult
	Reason string `json:"failure,omitempty"`
}

type allResponse struct {
	Entity  string            `json:"entity"`
	Count   int               `json:"count"`
	Records []*extract.Record `json:"records"`
}

type entityInfo struct {
	Name            string   `json:"name"`
	Method          string   `json:"method"`
	Endpoint        string   `json:"endpoint"`
	Pagination      string   `json:"pagination"`
	RequiredFilters []string `json:"required_filters,omitempty"`
}

// newServer builds the proxy routes. rdb may be nil.
func newServer(conn *connector.Connector, rdb *redis.Client, logger zerolog.Logger) http.Handler {
	s := &server{connector: conn, redis: rdb, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /entities", s.listEntities)
	mux.HandleFunc("GET /entities/{name}", s.fetchEntity)
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed - redis unavailable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) listEntities(w http.ResponseWriter, r *http.Request) {
	names := s.connector.Entities()
	out := make([]entityInfo, 0, len(names))
	for _, name := range names {
		desc, err := s.connector.Describe(name)
		if err != nil {
			continue
		}
		out = append(out, entityInfo{
			Name:            desc.Name,
			Method:          desc.Method,
			Endpoint:        desc.Endpoint,
			Pagination:      string(desc.Pagination.Style),
			RequiredFilters: desc.RequiredFilters,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// fetchEntity serves /entities/{name}?page=&size=&cursor=&filter=field:op:value&all=true.
func (s *server) fetchEntity(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("name")
	query := r.URL.Query()

	filters, err := parseFilters(query["filter"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if all, _ := strconv.ParseBool(query.Get("all")); all {
		records, err := s.connector.FetchAll(ctx, entity, filters)
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		if records == nil {
			records = []*extract.Record{}
		}
		s.writeJSON(w, http.StatusOK, allResponse{Entity: entity, Count: len(records), Records: records})
		return
	}

	page, err := intParam(query.Get("page"), 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("page: %w", err))
		return
	}
	size, err := intParam(query.Get("size"), 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("size: %w", err))
		return
	}

	result, err := s.connector.Fetch(ctx, entity, filters, pagination.PageRequest{
		Page:   page,
		Size:   size,
		Cursor: query.Get("cursor"),
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, newPageResponse(entity, result))
}

func newPageResponse(entity string, result pagination.PageResult) pageResponse {
	resp := pageResponse{Entity: entity, PageResult: result}
	if resp.Records == nil {
		resp.Records = []*extract.Record{}
	}
	if result.Failure != nil {
		resp.Reason = result.Failure.Error()
	}
	return resp
}

func parseFilters(raw []string) ([]filter.Expression, error) {
	filters := make([]filter.Expression, 0, len(raw))
	for _, s := range raw {
		expr, err := filter.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		filters = append(filters, expr)
	}
	return filters, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative (got %d)", n)
	}
	return n, nil
}

// statusFor maps connector errors to HTTP status codes.
func statusFor(err error) int {
	var vErr *endpoint.ValidationError
	switch {
	case errors.Is(err, catalog.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		s.logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
