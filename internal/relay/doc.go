// Package relay connects pqchat clients to the relay and implements the
// relay itself.
//
// Client side:
//   - HTTPClient implements domain.KeyDirectory and domain.MessageStore over
//     JSON/HTTP. Every request is bounded by a timeout.
//   - PresenceClient implements domain.PresenceRelay over a websocket and
//     tracks the online list broadcast by the hub.
//
// Server side:
//   - Server serves the HTTP API below, backed by any KeyDirectory and
//     MessageStore (store.RelayDB in production).
//   - Hub is the presence relay: username to live connection, frame
//     forwarding and online-list broadcasts. Frames for offline users are
//     dropped; nothing is queued.
//
// HTTP API
//
//	POST   /register                      publish {username, publicKey}
//	GET    /keys/{username}               fetch a public key (404 if unknown)
//	GET    /users                         registered and online users
//	POST   /messages                      append a dual-envelope record
//	GET    /messages?user1=&user2=        conversation, oldest first
//	DELETE /messages?user1=&user2=        delete a conversation
//	GET    /ws?username=                  presence websocket
//	GET    /metrics                       Prometheus metrics
//
// Non-2xx statuses are returned to clients as errors carrying the method,
// path and status text.
package relay
