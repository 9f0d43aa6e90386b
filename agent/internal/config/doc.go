// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` tree parsed from YAML (`server:` is ignored)
//   - AgentConfig: server_url, interval, batch_size, id_space, seed,
//     buffer_size, server_auth
//   - AuthConfig: mode (mtls|apikey|none), cert/key/ca files, header, key_env;
//     Key() resolves the API key from the environment
//
// Load(path) reads the YAML file, applies defaults (2s interval, 10 per batch,
// ids below 1000, 100 buffered batches), then validates required fields and
// enums.
//
// Watch(ctx, path, onChange) calls onChange with the newly parsed Config
// after each change to the file (see pkg/filewatch).
package config
