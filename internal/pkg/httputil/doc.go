// Package httputil holds small helpers shared by all chi HTTP handlers:
// JSON response envelopes, error responses, and request body decoding.
package httputil
