// Package http implements the minimal HTTP/1.1 subset staticd speaks.
//
// # Scope
//
// One request per connection. Only the request line is interpreted; every
// other header line is ignored and there is never a request body. Responses
// always carry "Connection: close" and are delimited by Content-Length.
//
// # Layers
//
//   - Parsing (request.go): request line → Request, or a parse error (400)
//   - Path resolution (path.go): query stripping, traversal guard,
//     percent-decoding and the auto-index rule
//   - Response building (handler.go): GET/HEAD against a content.Store
//   - Streaming (response.go, bufpool.go): status line, sorted headers and
//     a body copied in fixed-size chunks
//
// # Thread Safety
//
// Every function here is stateless apart from the buffer pool, which is
// safe for concurrent use. A Request or Response belongs to the single
// worker handling its connection.
package http
