package middleware

import (
	"net/http"
)

// Middleware defines an interface for HTTP middleware.
// Each middleware takes the next handler in the chain and returns a new
// handler that wraps additional behavior around it.
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// Func adapts a plain function to the Middleware interface.
type Func func(next http.Handler) http.Handler

func (f Func) Middleware(next http.Handler) http.Handler {
	return f(next)
}

// Chain manages an ordered sequence of middleware. The first middleware
// added is the first to see the request; every stage can short-circuit
// without invoking the rest of the chain.
type Chain struct {
	middlewares []Middleware
}

func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{
		middlewares: middlewares,
	}
}

// Use appends a middleware to the chain.
func (c *Chain) Use(middleware Middleware) {
	c.middlewares = append(c.middlewares, middleware)
}

// Then applies the chain to the final HTTP handler, wrapping it with each
// middleware in reverse order so that the first added runs first.
func (c *Chain) Then(final http.Handler) http.Handler {
	if final == nil {
		final = http.DefaultServeMux
	}

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		final = c.middlewares[i].Middleware(final)
	}
	return final
}

// statusWriter captures the HTTP status code and response length for the
// logging middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}
