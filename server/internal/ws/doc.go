// Package ws streams store changes to WebSocket clients.
//
// Each connection is one hub subscription: the client receives the initial
// snapshot as soon as it connects, then one message per committed change.
//
// New(hub, bufSize) creates a Stream.
// Stream.Run(ctx) blocks until ctx is cancelled, then closes all active
// connections.
// Stream.ServeHTTP upgrades an HTTP connection to WebSocket and serves it
// until the client goes away.
//
// Message format sent to clients:
//
//	{
//	  "event": "initial" | "updated" | "error",
//	  "data":  {"version": 7, "records": [...], "inserted": [...], "modified": [...], "deleted": [...], "error": "..."}
//	}
//
// A client whose outgoing buffer fills up is disconnected; it can reconnect
// and will start again from a fresh initial snapshot.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
