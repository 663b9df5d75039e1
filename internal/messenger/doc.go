// Package messenger implements request/reply round-trips between execution
// contexts.
//
// The sending side is a Messenger: Send hands a payload to a Transport, waits
// for the single {data, error} reply and returns data, or the error value
// wrapped in a *RemoteError. Transport failures come back from the same call
// wrapped in ErrDelivery. Nothing is retried and there is no built-in
// timeout; cancel the context to stop waiting.
//
// The receiving side is a Router mapping command names to handlers. Payloads
// follow the {cmd, data} convention of Message. A handler's return value
// becomes the reply data, its error (or panic) the reply error.
//
// Two transports are provided: Loopback connects a Messenger to a Router in
// the same process, and SocketTransport talks to a Host over socket.io.
package messenger
