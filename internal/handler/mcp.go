// MCP transport handler for the ACP gateway using the official MCP Go SDK.
// Exposes intent submission and transaction queries as MCP tools.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"acp-gateway/internal/model"
	"acp-gateway/internal/protocol"
)

// === MCP Meta Types ===
// Meta mirrors the HTTP headers the REST transport carries:
// - ACP-Agent header → meta["acp-agent"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	ACPAgent *ACPAgentMeta `json:"acp-agent"`
}

// ACPAgentMeta identifies the calling agent's client.
type ACPAgentMeta struct {
	Profile string `json:"profile"`
	Client  string `json:"client,omitempty"`
}

// === MCP Tool Input/Output Types ===

// SubmitIntentInput is the input schema for the submit_intent tool.
type SubmitIntentInput struct {
	Meta     MCPMeta               `json:"meta" jsonschema:"request metadata,required"`
	Envelope model.RequestEnvelope `json:"envelope" jsonschema:"signed ACP request envelope,required"`
}

// GetTransactionInput is the input schema for the get_transaction tool.
type GetTransactionInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata,required"`
	ID   string  `json:"id" jsonschema:"transaction ID,required"`
}

// PropertyControlInput is the input schema for pause_property and
// resume_property.
type PropertyControlInput struct {
	Meta   MCPMeta `json:"meta" jsonschema:"request metadata,required"`
	ID     string  `json:"id" jsonschema:"property entity ID,required"`
	Reason string  `json:"reason,omitempty" jsonschema:"operator-supplied reason"`
}

// PropertyControlResult acknowledges a pause or resume.
type PropertyControlResult struct {
	EntityID string `json:"entity_id"`
	Active   bool   `json:"active"`
}

// NewMCPServer creates an MCP server with gateway tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "acp-gateway",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "ACP Gateway - Agent Commerce Protocol for hotel booking. " +
				"Submit signed request envelopes to discover availability, negotiate " +
				"rates, and execute bookings.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_intent",
		Description: "Submit a signed ACP request envelope (discover, negotiate, or execute).",
	}, h.mcpSubmitIntent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transaction",
		Description: "Get the current state and offer history of a transaction.",
	}, h.mcpGetTransaction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause_property",
		Description: "Take a property out of rotation. New intents targeting it are rejected.",
	}, h.mcpPauseProperty)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_property",
		Description: "Put a paused property back into rotation.",
	}, h.mcpResumeProperty)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpSubmitIntent(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SubmitIntentInput,
) (*mcp.CallToolResult, *model.IntentResponse, error) {
	if err := h.mcpHello(&input.Meta); err != nil {
		return nil, nil, err
	}

	env := input.Envelope
	if err := h.validator.ValidateEnvelope(&env); err != nil {
		return nil, nil, h.mcpError(err)
	}

	if _, err := h.authenticator.Authorize(ctx, &env); err != nil {
		return nil, nil, h.mcpError(err)
	}

	if _, err := h.registry.Resolve(ctx, env.TargetEntityID); err != nil {
		return nil, nil, h.mcpError(err)
	}

	resp, err := h.manager.Handle(ctx, &env)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, resp, nil
}

func (h *Handler) mcpGetTransaction(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetTransactionInput,
) (*mcp.CallToolResult, *model.Transaction, error) {
	if err := h.mcpHello(&input.Meta); err != nil {
		return nil, nil, err
	}

	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	tx, err := h.manager.GetTransaction(ctx, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, tx, nil
}

func (h *Handler) mcpPauseProperty(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PropertyControlInput,
) (*mcp.CallToolResult, *PropertyControlResult, error) {
	return h.mcpSetActive(ctx, input, false)
}

func (h *Handler) mcpResumeProperty(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PropertyControlInput,
) (*mcp.CallToolResult, *PropertyControlResult, error) {
	return h.mcpSetActive(ctx, input, true)
}

func (h *Handler) mcpSetActive(
	ctx context.Context,
	input PropertyControlInput,
	active bool,
) (*mcp.CallToolResult, *PropertyControlResult, error) {
	if err := h.mcpHello(&input.Meta); err != nil {
		return nil, nil, err
	}

	if input.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	var err error
	if active {
		err = h.registry.Resume(ctx, input.ID, input.Reason)
	} else {
		err = h.registry.Pause(ctx, input.ID, input.Reason)
	}
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, &PropertyControlResult{EntityID: input.ID, Active: active}, nil
}

// mcpError converts gateway errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	if apiErr, ok := err.(*model.APIError); ok {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// mcpHello applies the client version gate to meta.acp-agent, the MCP
// equivalent of the ACP-Agent header. The REST middleware never sees MCP
// requests, so the gate runs here.
func (h *Handler) mcpHello(meta *MCPMeta) error {
	if meta == nil || meta.ACPAgent == nil || meta.ACPAgent.Profile == "" {
		return fmt.Errorf("acp_agent_required: meta.acp-agent.profile is required in MCP requests")
	}

	hello := &protocol.AgentHello{ProfileURL: meta.ACPAgent.Profile}
	if meta.ACPAgent.Client != "" {
		header := fmt.Sprintf("profile=%q;client=%q", meta.ACPAgent.Profile, meta.ACPAgent.Client)
		parsed, err := protocol.ParseAgentHeader(header)
		if err == nil {
			hello = parsed
		}
	}

	if err := h.validator.CheckClientVersion(hello); err != nil {
		return fmt.Errorf("acp_client_unsupported: %s", err.Error())
	}
	return nil
}
