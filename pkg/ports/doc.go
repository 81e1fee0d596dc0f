// Package ports defines the interfaces between the graph engine core and
// its adapters: the remote document store, the execution backend, and the
// push channel. Adapters live under pkg/adapters; the core never imports
// them directly.
package ports
