package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"
)

type fetchRequest struct {
	headers http.Header
	url     string
	method  string
	body    []byte
}

type fetchResponse struct {
	headers    http.Header
	url        string
	statusText string
	body       []byte
	status     int
}

func (e *Engine) installFetch(vm *goja.Runtime) {
	_ = vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		req, err := parseFetchInit(vm, call.Argument(0), call.Argument(1))
		if err != nil {
			promise, _, reject := vm.NewPromise()
			reject(vm.NewGoError(err))
			return vm.ToValue(promise)
		}
		if req.headers.Get("User-Agent") == "" && e.userAgent != "" {
			req.headers.Set("User-Agent", e.userAgent)
		}
		return e.loop.spawn(func(ctx context.Context) (any, error) {
			resp, err := e.doFetch(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("Failed to fetch: %v", err)
			}
			return resp, nil
		}, func(v any) (goja.Value, error) {
			return newResponse(vm, v.(*fetchResponse)), nil
		})
	})
}

func parseFetchInit(vm *goja.Runtime, target, init goja.Value) (*fetchRequest, error) {
	req := &fetchRequest{url: target.String(), method: http.MethodGet, headers: http.Header{}}
	if obj, ok := target.(*goja.Object); ok {
		if u := obj.Get("href"); u != nil && !goja.IsUndefined(u) {
			req.url = u.String()
		}
	}
	if goja.IsUndefined(init) || goja.IsNull(init) {
		return req, nil
	}
	opts := init.ToObject(vm)

	if m := opts.Get("method"); m != nil && !goja.IsUndefined(m) {
		req.method = strings.ToUpper(m.String())
		if !validMethod(req.method) {
			return nil, fmt.Errorf("Invalid HTTP method: %s", m.String())
		}
	}
	if h := opts.Get("headers"); h != nil && !goja.IsUndefined(h) && !goja.IsNull(h) {
		ho := h.ToObject(vm)
		for _, k := range ho.Keys() {
			req.headers.Set(k, ho.Get(k).String())
		}
	}
	if b := opts.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
		data, ok := bytesOf(b)
		if !ok {
			data = []byte(b.String())
		}
		req.body = data
	}
	return req, nil
}

// validMethod reports whether m is an RFC 7230 token.
func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, c := range m {
		if c > 127 || c <= ' ' || strings.ContainsRune(`()<>@,;:\"/[]?={}`, c) {
			return false
		}
	}
	return true
}

// doFetch runs on a pool worker.
func (e *Engine) doFetch(ctx context.Context, fr *fetchRequest) (*fetchResponse, error) {
	var body io.Reader
	if fr.body != nil {
		body = bytes.NewReader(fr.body)
	}
	req, err := http.NewRequestWithContext(ctx, fr.method, fr.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = fr.headers

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if e.maxBodyBytes > 0 {
		r = io.LimitReader(resp.Body, e.maxBodyBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &fetchResponse{
		status:     resp.StatusCode,
		statusText: http.StatusText(resp.StatusCode),
		url:        resp.Request.URL.String(),
		headers:    resp.Header,
		body:       data,
	}, nil
}

// newResponse builds the Response-like object handed to scripts.
func newResponse(vm *goja.Runtime, r *fetchResponse) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("status", r.status)
	_ = obj.Set("statusText", r.statusText)
	_ = obj.Set("ok", r.status >= 200 && r.status < 300)
	_ = obj.Set("url", r.url)

	headers := vm.NewObject()
	_ = headers.Set("get", func(name string) goja.Value {
		if v := r.headers.Values(name); len(v) > 0 {
			return vm.ToValue(strings.Join(v, ", "))
		}
		return goja.Null()
	})
	_ = headers.Set("has", func(name string) bool {
		return len(r.headers.Values(name)) > 0
	})
	_ = obj.Set("headers", headers)

	settled := func(fn func() (goja.Value, error)) func() goja.Value {
		return func() goja.Value {
			promise, resolve, reject := vm.NewPromise()
			if v, err := fn(); err != nil {
				reject(vm.NewGoError(err))
			} else {
				resolve(v)
			}
			return vm.ToValue(promise)
		}
	}
	_ = obj.Set("text", settled(func() (goja.Value, error) {
		return vm.ToValue(string(r.body)), nil
	}))
	_ = obj.Set("json", settled(func() (goja.Value, error) {
		parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
		return parse(goja.Undefined(), vm.ToValue(string(r.body)))
	}))
	_ = obj.Set("arrayBuffer", settled(func() (goja.Value, error) {
		return vm.ToValue(vm.NewArrayBuffer(append([]byte{}, r.body...))), nil
	}))
	return obj
}
