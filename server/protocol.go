package server

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Custom methods, client to server.
const (
	MethodRequestCompletion = "ghostwrite/requestCompletion"
	MethodAccept            = "ghostwrite/accept"
	MethodDismiss           = "ghostwrite/dismiss"
	MethodDisplayed         = "ghostwrite/displayed"
	MethodSetStrategy       = "ghostwrite/setStrategy"
)

// Custom notifications, server to client.
const (
	MethodShowGhost = "ghostwrite/showGhost"
	MethodHideGhost = "ghostwrite/hideGhost"
)

// Commands for clients that only support workspace/executeCommand.
const (
	CommandAccept  = "ghostwrite.accept"
	CommandDismiss = "ghostwrite.dismiss"
	CommandRequest = "ghostwrite.request"
)

// Commands lists the commands advertised in ServerCapabilities.
var Commands = []string{CommandAccept, CommandDismiss, CommandRequest}

// RequestCompletionParams asks for a completion at Position.
type RequestCompletionParams struct {
	URI      protocol.DocumentUri `json:"uri"`
	Position protocol.Position    `json:"position"`
	Trigger  string               `json:"trigger,omitempty"` // manual or automatic
}

// RequestCompletionResult carries the request ID, or 0 with Debounced set
// when an automatic request was deferred.
type RequestCompletionResult struct {
	RequestID uint64 `json:"requestId"`
	Debounced bool   `json:"debounced,omitempty"`
}

// AcceptParams accepts the ghost in URI. An empty Type accepts
// progressively; "smart" picks the type from the ghost's shape.
type AcceptParams struct {
	URI  protocol.DocumentUri `json:"uri"`
	Type string               `json:"type,omitempty"`
}

// AcceptResult reports whether a ghost was shown and how it was accepted.
type AcceptResult struct {
	Accepted bool   `json:"accepted"`
	Type     string `json:"type"`
}

// DismissParams dismisses the ghost in URI.
type DismissParams struct {
	URI protocol.DocumentUri `json:"uri"`
}

// DisplayedParams acknowledges a showGhost notification.
type DisplayedParams struct {
	URI       protocol.DocumentUri `json:"uri"`
	RequestID uint64               `json:"requestId"`
	OK        bool                 `json:"ok"`
	Error     string               `json:"error,omitempty"`
}

// SetStrategyParams switches the completion strategy.
type SetStrategyParams struct {
	Strategy string `json:"strategy"`
}

// SetStrategyResult echoes the active strategy.
type SetStrategyResult struct {
	Strategy string `json:"strategy"`
}

// ShowGhostParams asks the client to render a completion decoration.
type ShowGhostParams struct {
	URI         protocol.DocumentUri `json:"uri"`
	RequestID   uint64               `json:"requestId"`
	Range       protocol.Range       `json:"range"`
	Text        string               `json:"text"`
	DisplayText string               `json:"displayText"`
	Mode        string               `json:"mode"`
	Rationale   string               `json:"rationale,omitempty"`
	Cached      bool                 `json:"cached,omitempty"`
}

// HideGhostParams asks the client to remove the decoration in URI.
type HideGhostParams struct {
	URI protocol.DocumentUri `json:"uri"`
}

// InitializationOptions are read from initialize.initializationOptions.
type InitializationOptions struct {
	// DisplayAck means the client answers every showGhost with
	// ghostwrite/displayed. Without it a ghost counts as shown once sent.
	DisplayAck bool   `json:"displayAck"`
	Strategy   string `json:"strategy,omitempty"`
}
