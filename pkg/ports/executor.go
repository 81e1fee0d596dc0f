package ports

import "context"

// ExecuteRequest starts an asynchronous run of a single node. Results
// arrive later on the push channel, not in the response.
type ExecuteRequest struct {
	NodeID    string         `json:"nodeId"`
	SectionID string         `json:"sectionId"`
	Code      string         `json:"code,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

// Executor is the execution backend. All calls only acknowledge that the
// request was accepted; progress and results stream in asynchronously.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) error
	Stop(ctx context.Context, nodeID string) error
	ExecuteFlow(ctx context.Context, sectionID, startNodeID string) error
}
