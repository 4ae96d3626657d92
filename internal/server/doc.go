// Package server implements the HTTP and WebSocket transport for the room
// relay.
//
// The Hub tracks live connections and opens one chat.Session per client;
// each Client decodes inbound event envelopes into session transitions and
// receives room logs from the delivery loop through its bounded send buffer.
// Configuration, origin checks, rate limiting, routing and the HTTP server
// helpers live in their own files.
package server
