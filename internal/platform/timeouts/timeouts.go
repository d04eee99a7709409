// Package timeouts defines shared timeout constants used across the engine
// and its collaborators. Centralizing these values keeps the HTTP fetch
// client, push channel and runtime servers consistent.
package timeouts

import "time"

// FetchRequest caps one batch fetch HTTP round trip.
const FetchRequest = 15 * time.Second

// PushHandshake caps the websocket dial and upgrade of the push channel.
const PushHandshake = 10 * time.Second

// PushWrite caps a single websocket frame write.
const PushWrite = 5 * time.Second

// PushPongWait is how long the push channel waits for any frame, pong
// included, before it treats the connection as dead.
const PushPongWait = 60 * time.Second

// PushPing is the keepalive interval; it must stay below PushPongWait.
const PushPing = PushPongWait * 9 / 10

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
