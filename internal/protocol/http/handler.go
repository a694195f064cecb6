package http

import (
	"context"
	"strconv"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/content"
)

// BuildResponse answers req from store, resolving its path under root.
//
// GET opens the entry and attaches it as the body. HEAD only stats it.
// Either way a failure becomes 403 when the request was an auto-index
// lookup and 404 otherwise, whatever the cause. Any other method gets 405.
//
// The caller must Finalize, stream and Close the response.
func BuildResponse(ctx context.Context, req *Request, root string, store content.Store) *Response {
	name := ResolvePath(root, req.Path)

	switch req.Method {
	case MethodGet:
		return handleGet(ctx, req, name, store)
	case MethodHead:
		return handleHead(ctx, req, name, store)
	default:
		return NotAllowed()
	}
}

func handleGet(ctx context.Context, req *Request, name string, store content.Store) *Response {
	obj, err := store.Open(ctx, name)
	if err != nil {
		logger.Debug("GET %s: %v", name, err)
		return lookupFailed(req)
	}

	resp := NewResponse(StatusOK)
	resp.SetHeader(HeaderContentType, ContentType(name))
	resp.SetBody(obj.Body, obj.Size)
	return resp
}

func handleHead(ctx context.Context, req *Request, name string, store content.Store) *Response {
	info, err := store.Stat(ctx, name)
	if err != nil {
		logger.Debug("HEAD %s: %v", name, err)
		return lookupFailed(req)
	}

	resp := NewResponse(StatusOK)
	resp.SetHeader(HeaderContentType, ContentType(name))
	resp.SetHeader(HeaderContentLength, strconv.FormatInt(info.Size, 10))
	return resp
}

func lookupFailed(req *Request) *Response {
	if req.AutoIndex {
		return NewResponse(StatusForbidden)
	}
	return NewResponse(StatusNotFound)
}

// BadRequest is the response to a request that failed to parse.
func BadRequest() *Response {
	return NewResponse(StatusBadRequest)
}

// NotAllowed is the response to a method the server does not implement.
func NotAllowed() *Response {
	return NewResponse(StatusNotAllowed)
}
