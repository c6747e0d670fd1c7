package router

import (
	"net/http"

	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a set of routes under the versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version>
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion replaces the default "v1" prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues registrars for Setup
func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

// Setup mounts every registrar. Paths that match nothing are attached as
// dto.ErrRouteNotFound for the FailureTranslator to render.
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	r.engine.NoRoute(func(c *gin.Context) {
		_ = c.Error(dto.ErrRouteNotFound)
		c.Abort()
	})
}

func (r *Router) APIVersion() string {
	return r.apiVersion
}

// Route is one declared endpoint of a ResourceGroup
type Route struct {
	Method   string
	Path     string
	handlers []gin.HandlerFunc
}

// ResourceGroup declares the routes of one resource under a path prefix.
// Nothing touches gin until RegisterRoutes.
type ResourceGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []Route
	children   []*ResourceGroup
}

func NewResourceGroup(prefix string) *ResourceGroup {
	return &ResourceGroup{prefix: prefix}
}

// Use adds middleware that runs for this group and its children only
func (g *ResourceGroup) Use(mw ...gin.HandlerFunc) *ResourceGroup {
	g.middleware = append(g.middleware, mw...)
	return g
}

// Handle declares a route with any method
func (g *ResourceGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *ResourceGroup {
	g.routes = append(g.routes, Route{Method: method, Path: path, handlers: handlers})
	return g
}

func (g *ResourceGroup) GET(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.Handle(http.MethodGet, path, h...)
}

func (g *ResourceGroup) POST(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.Handle(http.MethodPost, path, h...)
}

func (g *ResourceGroup) DELETE(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.Handle(http.MethodDelete, path, h...)
}

// Child declares a nested group whose prefix is relative to this one
func (g *ResourceGroup) Child(prefix string) *ResourceGroup {
	child := NewResourceGroup(prefix)
	g.children = append(g.children, child)
	return child
}

// Routes lists the declared routes with full paths relative to the API group
func (g *ResourceGroup) Routes() []Route {
	var out []Route
	for _, r := range g.routes {
		out = append(out, Route{Method: r.Method, Path: g.prefix + r.Path})
	}
	for _, child := range g.children {
		for _, r := range child.Routes() {
			out = append(out, Route{Method: r.Method, Path: g.prefix + r.Path})
		}
	}
	return out
}

// RegisterRoutes implements RouteRegistrar
func (g *ResourceGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		group.Handle(r.Method, r.Path, r.handlers...)
	}
	for _, child := range g.children {
		child.RegisterRoutes(group)
	}
}
