// Package server exposes the process manager over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/llamactl/internal/manager"
	"github.com/loykin/llamactl/internal/resolver"
	"github.com/loykin/llamactl/internal/settings"
)

const cleanupTimeout = 30 * time.Second

// Router serves the llamactl API under basePath:
//
//	GET    /healthz
//	POST   /launch                    {"model_path"}
//	POST   /launch/external           {"model_path"}
//	GET    /processes
//	GET    /processes/:id
//	GET    /processes/:id/output
//	POST   /processes/:id/terminate
//	DELETE /processes/:id
//	POST   /cleanup
//	GET    /versions
//	POST   /versions/active           {"path"}
//	DELETE /versions                  {"path"}
//	GET    /models/settings?path=
//	PUT    /models/settings           ModelConfig
type Router struct {
	mgr      *manager.Manager
	versions *resolver.Resolver
	store    *settings.Store
	basePath string
}

func NewRouter(mgr *manager.Manager, versions *resolver.Resolver, store *settings.Store, basePath string) *Router {
	return &Router{mgr: mgr, versions: versions, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler that can be mounted in any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.POST("/launch", r.handleLaunch)
	group.POST("/launch/external", r.handleLaunchExternal)
	group.GET("/processes", r.handleList)
	group.GET("/processes/:id", r.handleGet)
	group.GET("/processes/:id/output", r.handleOutput)
	group.POST("/processes/:id/terminate", r.handleTerminate)
	group.DELETE("/processes/:id", r.handleRemove)
	group.POST("/cleanup", r.handleCleanup)
	group.GET("/versions", r.handleListVersions)
	group.POST("/versions/active", r.handleActivateVersion)
	group.DELETE("/versions", r.handleDeleteVersion)
	group.GET("/models/settings", r.handleGetModelSettings)
	group.PUT("/models/settings", r.handlePutModelSettings)
	return g
}

// NewServer starts serving r on addr in the background.
func NewServer(addr string, r *Router) *http.Server {
	server := newHTTPServer(addr, r)
	go func() { _ = server.ListenAndServe() }()
	return server
}

// NewTLSServer is NewServer over HTTPS. cfg must provide the certificate.
func NewTLSServer(addr string, cfg *tls.Config, r *Router) *http.Server {
	server := newHTTPServer(addr, r)
	server.TLSConfig = cfg
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server
}

func newHTTPServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cleanupTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type launchReq struct {
	ModelPath string `json:"model_path"`
}

type pathReq struct {
	Path string `json:"path"`
}

// errorStatus maps manager errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, manager.ErrEmptyModelPath):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrProcessRunning):
		return http.StatusConflict
	case errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable
	case manager.IsResolutionError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, code int, msg string) {
	writeJSON(c, code, errorResp{Error: msg})
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "processes": len(r.mgr.List())})
}

func (r *Router) bindModelPath(c *gin.Context) (string, bool) {
	var req launchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return "", false
	}
	if req.ModelPath == "" {
		fail(c, http.StatusBadRequest, "model_path required")
		return "", false
	}
	if !isSafeAbsPath(req.ModelPath) {
		fail(c, http.StatusBadRequest, "invalid model_path: must be an absolute path without traversal")
		return "", false
	}
	return req.ModelPath, true
}

func (r *Router) handleLaunch(c *gin.Context) {
	path, ok := r.bindModelPath(c)
	if !ok {
		return
	}
	res, err := r.mgr.Launch(c.Request.Context(), path)
	if err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleLaunchExternal(c *gin.Context) {
	path, ok := r.bindModelPath(c)
	if !ok {
		return
	}
	res, err := r.mgr.LaunchExternal(c.Request.Context(), path)
	if err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.List())
}

func (r *Router) processID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isSafeID(id) {
		fail(c, http.StatusBadRequest, "invalid process id")
		return "", false
	}
	return id, true
}

func (r *Router) handleGet(c *gin.Context) {
	id, ok := r.processID(c)
	if !ok {
		return
	}
	info, ok := r.mgr.Get(id)
	if !ok {
		fail(c, http.StatusNotFound, manager.ErrProcessNotFound.Error())
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleOutput(c *gin.Context) {
	id, ok := r.processID(c)
	if !ok {
		return
	}
	out, err := r.mgr.Output(id)
	if err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleTerminate(c *gin.Context) {
	id, ok := r.processID(c)
	if !ok {
		return
	}
	if err := r.mgr.Terminate(id); err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRemove(c *gin.Context) {
	id, ok := r.processID(c)
	if !ok {
		return
	}
	if err := r.mgr.Remove(id); err != nil {
		fail(c, errorStatus(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCleanup(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), cleanupTimeout)
	defer cancel()
	n := r.mgr.StopAll(ctx)
	writeJSON(c, http.StatusOK, gin.H{"stopped": n})
}

func (r *Router) handleListVersions(c *gin.Context) {
	vs, err := r.versions.ListVersions(r.store.Global())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, vs)
}

func (r *Router) bindPath(c *gin.Context) (string, bool) {
	var req pathReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return "", false
	}
	if !isSafeAbsPath(req.Path) {
		fail(c, http.StatusBadRequest, "invalid path: must be an absolute path without traversal")
		return "", false
	}
	return req.Path, true
}

func (r *Router) handleActivateVersion(c *gin.Context) {
	path, ok := r.bindPath(c)
	if !ok {
		return
	}
	if err := r.versions.Activate(r.store.Global(), path); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDeleteVersion(c *gin.Context) {
	path, ok := r.bindPath(c)
	if !ok {
		return
	}
	if err := r.versions.DeleteVersion(r.store.Global(), path); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGetModelSettings(c *gin.Context) {
	path := c.Query("path")
	if !isSafeAbsPath(path) {
		fail(c, http.StatusBadRequest, "path query parameter must be an absolute model path")
		return
	}
	writeJSON(c, http.StatusOK, r.store.ModelConfig(path))
}

func (r *Router) handlePutModelSettings(c *gin.Context) {
	var mc settings.ModelConfig
	if err := c.ShouldBindJSON(&mc); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !isSafeAbsPath(mc.ModelPath) {
		fail(c, http.StatusBadRequest, "invalid model_path: must be an absolute path without traversal")
		return
	}
	if err := r.store.SetModelConfig(mc); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, r.store.ModelConfig(mc.ModelPath))
}
