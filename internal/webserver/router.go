package webserver

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

const ApiPrefix = "/api/v1"

type route struct {
	method      string
	path        string
	handler     echo.HandlerFunc
	middlewares []echo.MiddlewareFunc
}

var (
	routesMu sync.Mutex
	routes   []route
)

func addRoute(method, path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	routesMu.Lock()
	defer routesMu.Unlock()
	routes = append(routes, route{method: method, path: path, handler: h, middlewares: m})
}

// ApiGET registers a GET handler under ApiPrefix
func ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodGet, path, h, m...)
}

// ApiPOST registers a POST handler under ApiPrefix
func ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodPost, path, h, m...)
}

// ApiPUT registers a PUT handler under ApiPrefix
func ApiPUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodPut, path, h, m...)
}

// ApiDELETE registers a DELETE handler under ApiPrefix
func ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	addRoute(http.MethodDelete, path, h, m...)
}

func mountRoutes(g *echo.Group) {
	routesMu.Lock()
	defer routesMu.Unlock()
	for _, r := range routes {
		g.Add(r.method, r.path, r.handler, r.middlewares...)
	}
}
