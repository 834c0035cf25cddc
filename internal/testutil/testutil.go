// Package testutil holds helpers for exercising the tsweb debug routes in
// tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

// LoopbackAddr is the RemoteAddr debug requests come from. tsweb only serves
// /debug/ to loopback and tailnet peers.
const LoopbackAddr = "127.0.0.1:4321"

// DebugRequest builds a request that passes tsweb's debug access check.
func DebugRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// DebugForm builds a form-encoded POST debug request.
func DebugForm(target string, form url.Values) *http.Request {
	req := DebugRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
