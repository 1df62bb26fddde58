// Package relay implements the user<->admin message relay core: admission
// control, the admin registry, the per-admin conversation state machine, and
// the fan-out engines for inbound relays and admin broadcasts.
//
// Everything here is transport-agnostic: outbound effects go through the
// Messenger capability and durable state through storage.Store. All state
// keyed by one identity is mutated by a single writer at a time (the router
// shards inbound events per identity); cross-identity fan-out runs in
// parallel.
package relay
