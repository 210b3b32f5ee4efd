package tools

import (
	"context"

	"ebpro/pkg/api"
)

// ActionRequest is one classified action ready for execution.
type ActionRequest struct {
	Action api.Action        `json:"action"`
	Params map[string]string `json:"params"`
}

// ActionResponse describes what a successful action produced.
type ActionResponse struct {
	File string `json:"file,omitempty"` // Output file written by the action
}

// Controller executes actions against an external application.
// Failures are returned as *api.Failure so channels can show the message
// and hint unchanged.
type Controller interface {
	// Execute performs req.Action. It may block for as long as the external
	// application needs, but must return once ctx is done.
	Execute(ctx context.Context, req ActionRequest) (*ActionResponse, error)

	// Capabilities lists the actions this controller handles.
	Capabilities() []api.Action
}
