package service

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagecap/kit"
)

// RegisterMCP registers the capture tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCaptureTool(srv)
	s.registerHistoryTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- capture ---

func (s *Service) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagecap_capture",
		Description: "Capture a full-page screenshot of a URL, scrolling and stitching viewport tiles into one image (or a paginated PDF).",
		InputSchema: inputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Page URL to capture"},
			"width":  map[string]any{"type": "integer", "description": "Viewport width in pixels"},
			"height": map[string]any{"type": "integer", "description": "Viewport height in pixels"},
			"format": map[string]any{"type": "string", "description": "Output format: png, tiff, bmp or pdf"},
		}, []string{"url"}),
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r CaptureRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: enrichMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.captureEP, decode)
}

// enrichMCP mints a request ID per tool call; the transport value is
// already set by the kit MCP registration.
func enrichMCP(ctx context.Context) context.Context {
	reqID := newRequestID()
	return kit.WithTraceID(kit.WithRequestID(ctx, reqID), reqID)
}

// --- history ---

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagecap_history",
		Description: "List recent capture sessions, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum records to return (default 50)"},
		}, nil),
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r HistoryRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: enrichMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.historyEP, decode)
}
