package gateway

import (
	"context"
	"net/http"
)

func (g *Gateway) Get(ctx context.Context, path string) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

func (g *Gateway) Post(ctx context.Context, path string, body any) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (g *Gateway) Put(ctx context.Context, path string, body any) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (g *Gateway) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

func (g *Gateway) Delete(ctx context.Context, path string) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// DoJSON executes req and decodes a JSON response into out. out may be nil.
func (g *Gateway) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}
