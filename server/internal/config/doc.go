// Package config loads the server-side configuration from config.yaml (the
// `agent:` key is ignored by the server binary).
//
// Config fields:
//   - Server.HTTPPort            port for REST, /metrics and /ws/stream (default 8080)
//   - Server.Auth.Mode           "apikey" or "none"
//   - Server.Auth.KeyEnv         environment variable holding the expected API key
//   - Server.Auth.Header         HTTP header name (default "X-API-Key")
//   - Server.Storage.Backend     "memory" or "sqlite" (default memory)
//   - Server.Storage.Path        SQLite database file (default livelist.db)
//   - Server.Producer.*          fixture producer: enabled, interval (2s), batch_size (10), id_space (1000), seed
//   - Server.Stream.SendBuffer   per-client WebSocket buffer (default 16)
//   - Log.Level / Log.Format     slog level and handler (info / json)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file after each save, debounced,
// including editors that save by renaming a temporary file into place.
package config
