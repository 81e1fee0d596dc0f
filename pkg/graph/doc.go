// Package graph holds the canonical in-session representation of pipeline
// sections: the node/edge store, the connection invariants, the layout
// repair pass, and the per-section view cache.
//
// The store is the single source of truth during an editing session. Every
// durable mutation updates the section's live view synchronously and hands
// a snapshot to the persistence scheduler; transient execution overlay
// state is kept next to the graph but never enters a persisted snapshot.
package graph
