// Package shipper sends record batches to a livelist server over its REST API
// (PUT /api/v1/records, i.e. ReplaceAll).
//
// Shipper.ReplaceAll() is non-blocking: batches are placed in an in-memory
// channel (default capacity 100). When the buffer is full the oldest batch
// is evicted so the latest data is always preserved. This makes a Shipper a
// producer.Sink.
//
// Shipper.Run() drains the buffer in order, retrying a failed batch with
// truncated exponential backoff (1s→60s, ±25% jitter). Permanent HTTP errors
// (400, 401, 403) discard the batch immediately rather than retrying.
//
// Every batch carries an X-Request-Id (UUIDv7) that stays the same across
// retries. Auth: mTLS via the transport's TLS config, API key via a request
// header, or plain HTTP for local development.
package shipper
