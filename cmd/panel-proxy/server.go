package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/panel-aggregator/pkg/aggregate"
	"github.com/Sternrassler/panel-aggregator/pkg/metrics"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/Sternrassler/panel-aggregator/pkg/viewstate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionHeader carries the browser session id.
const SessionHeader = "X-Session-ID"

type server struct {
	registry *registry
	store    *viewstate.Store // nil disables view state
	pages    query.PageConfig
	origins  []string
	logger   zerolog.Logger
}

// viewResponse is the JSON body of a view request.
type viewResponse struct {
	Items         []json.RawMessage `json:"items"`
	Loading       bool              `json:"loading"`
	Error         *string           `json:"error"`
	TotalPages    int               `json:"totalPages"`
	TotalElements int               `json:"totalElements"`
	Generation    uint64            `json:"generation"`
	Query         query.Spec        `json:"query"`
}

func newViewResponse(res aggregate.Result[json.RawMessage], ctrl *aggregate.Controller[json.RawMessage]) viewResponse {
	out := viewResponse{
		Items:         res.Items,
		Loading:       res.Loading,
		TotalPages:    res.TotalPages,
		TotalElements: res.TotalElements,
		Generation:    ctrl.Generation(),
	}
	if out.Items == nil {
		out.Items = []json.RawMessage{}
	}
	if msg := res.Error(); msg != "" {
		out.Error = &msg
	}
	if spec, ok := ctrl.Spec(); ok {
		out.Query = spec
	}
	return out
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery(), cors.New(corsConfig(s.origins)))

	if err := r.SetTrustedProxies(nil); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	r.GET("/health", healthHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	views := r.Group("/views")
	views.GET("", s.handleViews)
	views.GET("/:view", s.handleView)
	views.POST("/:view/refetch", s.handleRefetch)

	return r
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *server) handleViews(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.list())
}

// handleView applies the request's query to the session's view and returns
// the aggregate. With wait=false it returns immediately, possibly loading.
func (s *server) handleView(c *gin.Context) {
	v, ok := s.registry.view(c.Param("view"))
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("unknown view %q", c.Param("view")))
		return
	}

	ctx := c.Request.Context()
	sessionID := sessionFrom(c)
	ctrl := s.registry.controller(sessionID, v)
	spec := s.resolveSpec(ctx, sessionID, v.Name, c.Request.URL.Query(), ctrl)

	if _, err := ctrl.Update(spec); err != nil {
		if errors.Is(err, aggregate.ErrClosed) {
			writeError(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	res := ctrl.Snapshot()
	if c.Query("wait") != "false" {
		var err error
		res, err = ctrl.Wait(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Str("view", v.Name).Msg("Client left before cycle settled")
		}
	}

	c.JSON(http.StatusOK, newViewResponse(res, ctrl))
}

// handleRefetch re-issues the current query of the session's view.
func (s *server) handleRefetch(c *gin.Context) {
	v, ok := s.registry.view(c.Param("view"))
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("unknown view %q", c.Param("view")))
		return
	}

	ctx := c.Request.Context()
	sessionID := sessionFrom(c)
	ctrl := s.registry.controller(sessionID, v)

	var (
		res aggregate.Result[json.RawMessage]
		err error
	)
	if _, hasQuery := ctrl.Spec(); hasQuery {
		res, err = ctrl.Refetch(ctx)
	} else {
		// First contact: load the stored or default query instead.
		if _, err = ctrl.Update(s.resolveSpec(ctx, sessionID, v.Name, c.Request.URL.Query(), ctrl)); err == nil {
			res, err = ctrl.Wait(ctx)
		}
	}

	switch {
	case errors.Is(err, aggregate.ErrClosed):
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug().Err(err).Str("view", v.Name).Msg("Client left before refetch settled")
	case err != nil:
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, newViewResponse(res, ctrl))
}

// resolveSpec builds the query from the request parameters. Without
// parameters the controller's current query is kept, then the stored one
// is restored, then the defaults apply. Explicit queries are saved.
func (s *server) resolveSpec(ctx context.Context, sessionID, view string, values url.Values, ctrl *aggregate.Controller[json.RawMessage]) query.Spec {
	key := viewstate.Key{Session: sessionID, View: view}

	if query.HasValues(values) {
		spec := query.ParseValues(values, s.pages)
		if s.store != nil {
			if err := s.store.Save(ctx, key, spec); err != nil {
				s.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to save view state")
			}
		}
		return spec
	}

	if spec, ok := ctrl.Spec(); ok {
		return spec
	}

	if s.store != nil {
		spec, err := s.store.Load(ctx, key)
		if err == nil {
			return spec
		}
		if !errors.Is(err, viewstate.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("View state unavailable, using defaults")
		}
	}

	spec, _ := query.New(1, s.pages.DefaultPageSize)
	return spec
}

// sessionFrom returns the request's session id in canonical UUID form,
// generating a new one when the header is absent or not a UUID. The id is
// always echoed in the response.
func sessionFrom(c *gin.Context) string {
	id, err := uuid.Parse(c.GetHeader(SessionHeader))
	if err != nil {
		id = uuid.New()
	}
	c.Header(SessionHeader, id.String())
	return id.String()
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
