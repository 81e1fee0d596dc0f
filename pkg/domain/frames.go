package domain

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// FrameType is the `type` discriminator of a push-channel message.
type FrameType string

const (
	FrameProgress     FrameType = "progress"
	FrameOutput       FrameType = "node_output_updated"
	FrameExecStart    FrameType = "node_execution_start"
	FrameExecComplete FrameType = "node_execution_complete"
	FrameExecError    FrameType = "node_execution_error"
	FrameFlowProgress FrameType = "flow_progress"
)

// Frame is a decoded push-channel message. Concrete frames carry only the
// fields their wire type defines.
type Frame interface {
	FrameType() FrameType
}

// ProgressFrame reports fractional progress for a running node.
type ProgressFrame struct {
	NodeID   string  `mapstructure:"nodeId"`
	Progress float64 `mapstructure:"progress"`
}

// OutputFrame carries a freshly computed node output.
type OutputFrame struct {
	NodeID string `mapstructure:"nodeId"`
	Output string `mapstructure:"output"`
}

// ExecStartFrame marks the beginning of a node run.
type ExecStartFrame struct {
	NodeID string `mapstructure:"nodeId"`
}

// ExecCompleteFrame marks a successful run.
type ExecCompleteFrame struct {
	NodeID string `mapstructure:"nodeId"`
}

// ExecErrorFrame marks a failed run.
type ExecErrorFrame struct {
	NodeID string `mapstructure:"nodeId"`
	Error  string `mapstructure:"error"`
}

// FlowProgressFrame marks data moving across an edge during a flow run.
type FlowProgressFrame struct {
	SourceID string `mapstructure:"sourceId"`
	TargetID string `mapstructure:"targetId"`
}

func (ProgressFrame) FrameType() FrameType     { return FrameProgress }
func (OutputFrame) FrameType() FrameType       { return FrameOutput }
func (ExecStartFrame) FrameType() FrameType    { return FrameExecStart }
func (ExecCompleteFrame) FrameType() FrameType { return FrameExecComplete }
func (ExecErrorFrame) FrameType() FrameType    { return FrameExecError }
func (FlowProgressFrame) FrameType() FrameType { return FrameFlowProgress }

// DecodeFrame parses one JSON wire frame into its typed form.
// Unknown types return ErrUnknownFrame so the router can skip them
// without treating the message as a failure.
func DecodeFrame(data []byte) (Frame, error) {
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	kind, _ := envelope["type"].(string)

	var frame Frame
	switch FrameType(kind) {
	case FrameProgress:
		frame = &ProgressFrame{}
	case FrameOutput:
		frame = &OutputFrame{}
	case FrameExecStart:
		frame = &ExecStartFrame{}
	case FrameExecComplete:
		frame = &ExecCompleteFrame{}
	case FrameExecError:
		frame = &ExecErrorFrame{}
	case FrameFlowProgress:
		frame = &FlowProgressFrame{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, kind)
	}

	// The wire payload is loosely typed (numbers arrive as float64,
	// optional fields may be absent), so decode leniently.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           frame,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(envelope); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", kind, err)
	}
	return frame, nil
}

// EncodeFrame renders a typed frame back to its JSON wire form. Used by
// the dev server and by tests.
func EncodeFrame(f Frame) ([]byte, error) {
	payload := map[string]any{"type": string(f.FrameType())}
	switch v := f.(type) {
	case *ProgressFrame:
		payload["nodeId"], payload["progress"] = v.NodeID, v.Progress
	case *OutputFrame:
		payload["nodeId"], payload["output"] = v.NodeID, v.Output
	case *ExecStartFrame:
		payload["nodeId"] = v.NodeID
	case *ExecCompleteFrame:
		payload["nodeId"] = v.NodeID
	case *ExecErrorFrame:
		payload["nodeId"], payload["error"] = v.NodeID, v.Error
	case *FlowProgressFrame:
		payload["sourceId"], payload["targetId"] = v.SourceID, v.TargetID
	default:
		return nil, fmt.Errorf("unencodable frame type %T", f)
	}
	return json.Marshal(payload)
}
