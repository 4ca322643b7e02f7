package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ormanaq/tmate/internal/controller"
	"github.com/ormanaq/tmate/internal/metrics"
)

// Router provides embeddable HTTP handlers for the session daemon.
// Endpoints under basePath:
//
//	POST   {basePath}/sessions            body: CreateSpec JSON
//	GET    {basePath}/sessions            query: active=true filters to running
//	GET    {basePath}/sessions/:id
//	POST   {basePath}/sessions/:id/stop
//	POST   {basePath}/sessions/:id/restart
//	DELETE {basePath}/sessions/:id
//	GET    {basePath}/sessions/:id/logs
//	GET    {basePath}/logs/recent         query: limit=N (default 100)
//	DELETE {basePath}/logs                query: session_id=... (empty clears all)
//	GET    {basePath}/events              SSE stream of {kind,payload} events
//
// Plus GET /metrics at the root. basePath may be empty or start with '/';
// no trailing slash.
type Router struct {
	ctrl     *controller.Controller
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(ctrl *controller.Controller, basePath string) *Router {
	return &Router{ctrl: ctrl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/sessions", r.handleCreate)
	group.GET("/sessions", r.handleList)
	group.GET("/sessions/:id", r.handleGet)
	group.POST("/sessions/:id/stop", r.handleStop)
	group.POST("/sessions/:id/restart", r.handleRestart)
	group.DELETE("/sessions/:id", r.handleDelete)
	group.GET("/sessions/:id/logs", r.handleLogs)
	group.GET("/logs/recent", r.handleRecent)
	group.DELETE("/logs", r.handleClearLogs)
	group.GET("/events", r.handleEvents)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router. The
// caller shuts it down via http.Server's Shutdown/Close.
func NewServer(addr, basePath string, ctrl *controller.Controller) *http.Server {
	r := NewRouter(ctrl, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleCreate(c *gin.Context) {
	var spec controller.CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeAbsPath(spec.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	sess, err := r.ctrl.Create(spec)
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, sess)
}

func (r *Router) handleList(c *gin.Context) {
	if active, _ := strconv.ParseBool(c.Query("active")); active {
		writeJSON(c, http.StatusOK, r.ctrl.ListActive())
		return
	}
	writeJSON(c, http.StatusOK, r.ctrl.ListAll())
}

func (r *Router) handleGet(c *gin.Context) {
	sess, err := r.ctrl.Get(c.Param("id"))
	if err != nil {
		writeNotFound(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (r *Router) handleStop(c *gin.Context) {
	sess, err := r.ctrl.Stop(c.Param("id"))
	if err != nil {
		writeNotFound(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (r *Router) handleRestart(c *gin.Context) {
	sess, err := r.ctrl.Restart(c.Param("id"))
	if err != nil {
		if errors.Is(err, controller.ErrNotFound) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.ctrl.Delete(c.Param("id")); err != nil {
		writeNotFound(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogs(c *gin.Context) {
	id := c.Param("id")
	if _, err := r.ctrl.Get(id); err != nil {
		writeNotFound(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.ctrl.Logs(id))
}

func (r *Router) handleRecent(c *gin.Context) {
	limit := 100
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(c, http.StatusOK, r.ctrl.Recent(limit))
}

func (r *Router) handleClearLogs(c *gin.Context) {
	r.ctrl.ClearLogs(c.Query("session_id"))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleEvents serves a server-sent-events stream. Subscription is implicit
// in the connection; disconnecting unsubscribes.
func (r *Router) handleEvents(c *gin.Context) {
	o := r.ctrl.Subscribe()
	defer r.ctrl.Unsubscribe(o)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				// evicted for falling behind
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", b); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeNotFound(c *gin.Context, err error) {
	if errors.Is(err, controller.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
