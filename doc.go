/*
Package railyard keeps an interactively edited pipeline graph consistent
across three views under asynchronous pressure: the user's in-memory
edits, the remotely persisted copy, and the live execution overlay pushed
by the backend.

The engine wires four parts:

  - graph.Store — the canonical section-scoped node/edge state, with
    connection invariants and layout repair.
  - persist.Coordinator — per-section debounced writes to the remote
    document store, flushed immediately on section switches and shutdown.
  - track.Router — projection of the push-channel frame stream onto the
    transient execution overlay.
  - ports adapters — the document store (REST, Redis, in-memory) and the
    push channel (websocket).

# Usage

	store, err := rest.New("http://localhost:8714")
	if err != nil {
		log.Fatal(err)
	}

	eng, err := railyard.New(store,
		railyard.WithSource(ws.NewChannel("ws://localhost:8714/events")),
		railyard.WithExecutor(store),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Close(context.Background())

	section, err := eng.ActivateSection(ctx, "s1")
	if err != nil {
		log.Fatal(err)
	}

	// Edit; writes coalesce behind the debounce window.
	_, err = eng.Connect(ctx, section.ID, "extract", "transform")

Execution progress arrives asynchronously on the push channel and is
visible through Execution and EdgeActive; it is never persisted.
*/
package railyard
