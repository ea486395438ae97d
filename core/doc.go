// Package core contains the settlement engine: deployment configuration, the
// payment and payment request lifecycles, custody, relay capabilities and the
// inbound message decoder. Storage and ledgers are reached only through the
// interfaces declared in contracts.go.
package core
