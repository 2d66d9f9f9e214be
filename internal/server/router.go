// Package server exposes the REST surface the kiosk dashboard consumes.
// Endpoints (under basePath, default /api):
//
//	GET  /launch-agents/list      enumerate descriptors
//	GET  /launch-agents/status    status snapshot for all labels
//	POST /launch-agents/create    compile descriptor (not installed)
//	POST /launch-agents/create-web  compile a web-kind descriptor
//	POST /launch-agents/install   compile-if-absent + register
//	POST /launch-agents/start|stop|restart|delete|test|view|export  {label}
//	POST /launch-agents/update    {label, content}
//	GET/PUT /config/master        master config document
//	GET/POST /config/launch-agents, DELETE /config/launch-agents/:label
//	GET  /system/metrics          CPU/mem/disk/network sample
//	GET  /events                  SSE stream of status changes
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roostd/roostd/internal/agent"
	"github.com/roostd/roostd/internal/controller"
	"github.com/roostd/roostd/internal/masterconfig"
	"github.com/roostd/roostd/internal/metrics"
	"github.com/roostd/roostd/internal/reconciler"
	"github.com/roostd/roostd/internal/sysmon"
)

// Router provides embeddable HTTP handlers for the agent API.
type Router struct {
	ctrl     *controller.Controller
	rec      *reconciler.Reconciler
	mirror   *masterconfig.Store
	basePath string
	logger   *slog.Logger
}

func NewRouter(ctrl *controller.Controller, rec *reconciler.Reconciler, mirror *masterconfig.Store, basePath string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{ctrl: ctrl, rec: rec, mirror: mirror, basePath: sanitizeBase(basePath), logger: logger}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) { ok(c, gin.H{"status": "up"}) })
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := g.Group(r.basePath)
	la := api.Group("/launch-agents")
	la.GET("/list", r.handleList)
	la.GET("/status", r.handleStatus)
	la.POST("/create", r.handleCreate(agent.KindDesktop))
	la.POST("/create-web", r.handleCreate(agent.KindWeb))
	la.POST("/install", r.handleInstall)
	la.POST("/start", r.labelVerb("start", r.ctrl.Start))
	la.POST("/stop", r.labelVerb("stop", r.ctrl.Stop))
	la.POST("/restart", r.labelVerb("restart", r.ctrl.Restart))
	la.POST("/delete", r.labelVerb("delete", r.ctrl.Delete))
	la.POST("/test", r.handleTest)
	la.POST("/view", r.handleView)
	la.POST("/update", r.handleUpdate)
	la.POST("/export", r.handleExport)

	cfg := api.Group("/config")
	cfg.GET("/master", r.handleMasterGet)
	cfg.PUT("/master", r.handleMasterPut)
	cfg.GET("/launch-agents", r.handleMirrorList)
	cfg.POST("/launch-agents", r.handleMirrorAdd)
	cfg.DELETE("/launch-agents/:label", r.handleMirrorDelete)

	api.GET("/system/metrics", r.handleSystemMetrics)
	api.GET("/events", r.handleEvents)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: /api/events holds a streaming response open.
		IdleTimeout: 60 * time.Second,
	}
}

// fail maps a domain error onto HTTP status + envelope.
func fail(c *gin.Context, err error) {
	code := agent.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "not_found":
		status = http.StatusNotFound
	case "conflict":
		status = http.StatusConflict
	case "validation":
		status = http.StatusBadRequest
	case "os_rejected":
		status = http.StatusBadGateway
	}
	writeJSON(c, status, response{Success: false, Message: err.Error(), Code: code})
}

type labelRequest struct {
	Label string `json:"label"`
}

func bindLabel(c *gin.Context) (string, bool) {
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return "", false
	}
	if !agent.IsSafeLabel(req.Label) {
		fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
		return "", false
	}
	return req.Label, true
}

func (r *Router) handleList(c *gin.Context) {
	list, err := r.ctrl.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []agent.Descriptor{}
	}
	ok(c, list)
}

func (r *Router) handleStatus(c *gin.Context) {
	snaps, err := r.rec.SnapshotAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if snaps == nil {
		snaps = []reconciler.Snapshot{}
	}
	ok(c, snaps)
}

func (r *Router) handleCreate(kind agent.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req controller.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
			return
		}
		req.Kind = kind
		if req.Label != "" && !agent.IsSafeLabel(req.Label) {
			fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
			return
		}
		d, err := r.ctrl.Create(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, d)
	}
}

func (r *Router) handleInstall(c *gin.Context) {
	var req controller.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	if req.Label != "" && !agent.IsSafeLabel(req.Label) {
		fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
		return
	}
	d, err := r.ctrl.Install(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

func (r *Router) labelVerb(name string, verb func(ctx context.Context, label string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		label, okRes := bindLabel(c)
		if !okRes {
			return
		}
		if err := verb(c.Request.Context(), label); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"label": label, "verb": name})
	}
}

func (r *Router) handleTest(c *gin.Context) {
	label, okRes := bindLabel(c)
	if !okRes {
		return
	}
	res, err := r.ctrl.Test(c.Request.Context(), label)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleView(c *gin.Context) {
	label, okRes := bindLabel(c)
	if !okRes {
		return
	}
	content, err := r.ctrl.View(c.Request.Context(), label)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"label": label, "content": content})
}

type updateRequest struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

func (r *Router) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	if !agent.IsSafeLabel(req.Label) {
		fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
		return
	}
	if err := r.ctrl.Update(c.Request.Context(), req.Label, []byte(req.Content)); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"label": req.Label})
}

func (r *Router) handleExport(c *gin.Context) {
	label, okRes := bindLabel(c)
	if !okRes {
		return
	}
	res, err := r.ctrl.Export(c.Request.Context(), label)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleMasterGet(c *gin.Context) {
	doc, err := r.mirror.Load()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, doc)
}

func (r *Router) handleMasterPut(c *gin.Context) {
	var doc masterconfig.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.mirror.Replace(doc); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (r *Router) handleMirrorList(c *gin.Context) {
	entries, err := r.mirror.List()
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []masterconfig.Entry{}
	}
	ok(c, entries)
}

func (r *Router) handleMirrorAdd(c *gin.Context) {
	var e masterconfig.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		fail(c, &agent.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	if !agent.IsSafeLabel(e.Label) {
		fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
		return
	}
	if err := r.mirror.AddEntry(e); err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (r *Router) handleMirrorDelete(c *gin.Context) {
	label := c.Param("label")
	if !agent.IsSafeLabel(label) {
		fail(c, &agent.ValidationError{Field: "label", Reason: "allowed [A-Za-z0-9._-], no '..' or path separators"})
		return
	}
	if err := r.mirror.RemoveEntry(label); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"label": label})
}

func (r *Router) handleSystemMetrics(c *gin.Context) {
	m, err := sysmon.Collect(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

// handleEvents streams reconciler changes as server-sent events, one
// "status" event per per-label change.
func (r *Router) handleEvents(c *gin.Context) {
	sub, cancel := r.rec.Subscribe()
	defer cancel()
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case change, open := <-sub:
			if !open {
				return false
			}
			c.SSEvent("status", change)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
