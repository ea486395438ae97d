// Package inbound accepts relay deliveries over a JSON envelope and hands them
// to the settlement service.
//
// Envelopes are validated first, then claimed in a replay window so relay
// retries of a message already in flight or already delivered are answered
// without touching storage. The durable consumed-message register kept by the
// settlement store stays authoritative; a failed delivery releases its claim
// so the relay can retry it.
package inbound
