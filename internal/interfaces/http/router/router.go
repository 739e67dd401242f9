package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// Mounter attaches its routes below a parent group
type Mounter interface {
	Mount(parent *gin.RouterGroup)
}

// Route binds one method and relative path to its handler chain
type Route struct {
	Method   string
	Path     string
	Handlers []gin.HandlerFunc
}

// Resource is a declarative table of routes sharing a path prefix
type Resource struct {
	Name       string
	Prefix     string
	Middleware []gin.HandlerFunc
	Routes     []Route
	Children   []*Resource
}

// NewResource starts an empty resource under prefix
func NewResource(name, prefix string) *Resource {
	return &Resource{Name: name, Prefix: prefix}
}

// Handle appends a route and returns the resource for chaining
func (res *Resource) Handle(method, relPath string, handlers ...gin.HandlerFunc) *Resource {
	res.Routes = append(res.Routes, Route{Method: method, Path: relPath, Handlers: handlers})
	return res
}

func (res *Resource) GET(relPath string, handlers ...gin.HandlerFunc) *Resource {
	return res.Handle(http.MethodGet, relPath, handlers...)
}

func (res *Resource) POST(relPath string, handlers ...gin.HandlerFunc) *Resource {
	return res.Handle(http.MethodPost, relPath, handlers...)
}

func (res *Resource) PUT(relPath string, handlers ...gin.HandlerFunc) *Resource {
	return res.Handle(http.MethodPut, relPath, handlers...)
}

// Child nests a resource below this one
func (res *Resource) Child(name, prefix string) *Resource {
	child := NewResource(name, prefix)
	res.Children = append(res.Children, child)
	return child
}

// Mount registers the resource and its children on parent
func (res *Resource) Mount(parent *gin.RouterGroup) {
	group := parent.Group(res.Prefix, res.Middleware...)
	for _, rt := range res.Routes {
		group.Handle(rt.Method, rt.Path, rt.Handlers...)
	}
	for _, child := range res.Children {
		child.Mount(group)
	}
}

// Paths lists "METHOD /full/path" for every route, rooted at base
func (res *Resource) Paths(base string) []string {
	prefix := joinPath(base, res.Prefix)
	out := make([]string, 0, len(res.Routes))
	for _, rt := range res.Routes {
		out = append(out, rt.Method+" "+joinPath(prefix, rt.Path))
	}
	for _, child := range res.Children {
		out = append(out, child.Paths(prefix)...)
	}
	return out
}

func joinPath(base, rel string) string {
	if rel == "" {
		return base
	}
	return path.Join(base, rel)
}

// API mounts resources under /api/<version> behind shared middleware
type API struct {
	engine     *gin.Engine
	version    string
	middleware []gin.HandlerFunc
	mounters   []Mounter
}

// APIOption configures an API
type APIOption func(*API)

// WithVersion sets the version segment of the prefix, "v1" by default
func WithVersion(version string) APIOption {
	return func(a *API) {
		a.version = version
	}
}

// NewAPI creates an API bound to engine
func NewAPI(engine *gin.Engine, opts ...APIOption) *API {
	a := &API{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Base is the versioned path prefix
func (a *API) Base() string {
	return "/api/" + a.version
}

// Use adds middleware that runs for versioned routes only
func (a *API) Use(middleware ...gin.HandlerFunc) *API {
	a.middleware = append(a.middleware, middleware...)
	return a
}

// Add queues a mounter for Mount
func (a *API) Add(m Mounter) *API {
	a.mounters = append(a.mounters, m)
	return a
}

// Mount registers everything queued with Add
func (a *API) Mount() {
	group := a.engine.Group(a.Base(), a.middleware...)
	for _, m := range a.mounters {
		m.Mount(group)
	}
}
