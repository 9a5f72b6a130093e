// Package server hosts the shared upstream HTTP client and the Fiber preview
// server for a generated site. The preview app attaches recover and request-ID
// middleware, exposes /-/healthz, and serves SiteRoot as static files once the
// diagnostics routes under /-/ have been registered.
package server
