// Package request issues single HTTP requests and folds every outcome into one
// Response shape.
//
// A request succeeds when the transport produced a status in 0..300 (0 is
// reported as 200, as happens for local file fetches). A status above 300, or
// a transport failure, cancellation or timeout (all reported as StatusFailed),
// is returned as an *Error carrying the same Response, so callers can inspect
// Status and Data on both paths.
//
// Body values that are not a string, []byte or io.Reader are JSON encoded and
// sent with Content-Type application/json; that header replaces a caller
// supplied Content-Type. With ResponseType JSON an undecodable body is not an
// error: Data keeps the raw text.
package request
