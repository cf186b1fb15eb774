// Package checkpoint provides Checkpointer implementations behind the
// core.Checkpointer contract: a volatile in-memory store for tests and
// short-lived runs, and a JSON file store for durable resume across process
// restarts. Backends are pluggable; the engine only ever talks to the
// save/load contract.
package checkpoint
