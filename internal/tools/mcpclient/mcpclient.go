// Package mcpclient surfaces tools exposed by external MCP servers into the
// Tool Abstraction's Registry (spec §4.4), using mark3labs/mcp-go's client
// package. This is the inverse of the teacher's internal/mcpserver, which
// exposes kandev itself *as* an MCP server; here the orchestration core is
// the consumer of someone else's MCP tool server.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/tools"
)

// Connection wraps one MCP client session and the tool names it registered,
// so the caller can Unregister them cleanly on disconnect.
type Connection struct {
	client      *client.Client
	names       []string
	log         *logger.Logger
	description string
}

// ConnectStdio launches an MCP server subprocess and discovers its tools.
func ConnectStdio(ctx context.Context, command string, args []string, env []string, reg *tools.Registry, log *logger.Logger) (*Connection, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp stdio client: %w", err)
	}
	return connect(ctx, c, reg, log.WithFields(zap.String("mcp_transport", "stdio"), zap.String("command", command)))
}

// ConnectSSE connects to an MCP server over SSE and discovers its tools.
func ConnectSSE(ctx context.Context, baseURL string, reg *tools.Registry, log *logger.Logger) (*Connection, error) {
	c, err := client.NewSSEMCPClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("start mcp sse client: %w", err)
	}
	return connect(ctx, c, reg, log.WithFields(zap.String("mcp_transport", "sse"), zap.String("url", baseURL)))
}

func connect(ctx context.Context, c *client.Client, reg *tools.Registry, log *logger.Logger) (*Connection, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orchcore", Version: "1.0.0"}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}

	listResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	conn := &Connection{client: c, log: log}
	for _, t := range listResult.Tools {
		t := t
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		reg.Register(&tools.Tool{
			Name:             t.Name,
			Description:      t.Description,
			ParametersSchema: schema,
			Invoke:           conn.invoker(t.Name),
		})
		conn.names = append(conn.names, t.Name)
	}

	log.Info("mcp server connected", zap.Int("tool_count", len(conn.names)))
	return conn, nil
}

func (conn *Connection) invoker(name string) func(ctx context.Context, args json.RawMessage) (string, error) {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		var params map[string]any
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return "", fmt.Errorf("invalid arguments for mcp tool %q: %w", name, err)
			}
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = params

		result, err := conn.client.CallTool(ctx, req)
		if err != nil {
			return "", fmt.Errorf("mcp tool %q call failed: %w", name, err)
		}
		return renderContent(result), nil
	}
}

func renderContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

// Close disconnects the MCP session and unregisters its tools from the
// registry it was discovered through.
func (conn *Connection) Close(reg *tools.Registry) error {
	for _, name := range conn.names {
		reg.Unregister(name)
	}
	return conn.client.Close()
}
