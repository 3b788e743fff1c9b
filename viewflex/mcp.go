package viewflex

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/viewflex/kit"
)

// Version is reported to MCP clients.
const Version = "0.3.0"

// NewMCPServer returns an MCP server exposing the daemon tools.
func (d *Daemon) NewMCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "viewflex", Version: Version}, nil)
	d.RegisterMCP(srv)
	return srv
}

// MCPHandler serves the daemon tools over streamable HTTP.
func (d *Daemon) MCPHandler() http.Handler {
	srv := d.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// RegisterMCP registers viewflex_get_width, viewflex_set_width,
// viewflex_sites and viewflex_sessions on srv.
func (d *Daemon) RegisterMCP(srv *mcp.Server) {
	siteProp := map[string]any{
		"type":        "string",
		"enum":        []string{"gemini", "chatgpt", "claude", "default"},
		"description": "Chat site",
	}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "viewflex_get_width",
		Description: "Get the stored conversation width (rem) for a chat site. Sites without a stored value report the default of 80.",
		InputSchema: inputSchema(map[string]any{"site": siteProp}, []string{"site"}),
	}, d.ep.getWidth, kit.DecodeJSON[siteReq]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "viewflex_set_width",
		Description: "Store the conversation width (rem, 20 to 200) for a chat site and apply it to the open pages of that site.",
		InputSchema: inputSchema(map[string]any{
			"site":  siteProp,
			"width": map[string]any{"type": "integer", "minimum": 20, "maximum": 200, "description": "Width in rem"},
		}, []string{"site", "width"}),
	}, d.ep.setWidth, kit.DecodeJSON[setWidthReq]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "viewflex_sites",
		Description: "List the supported chat sites with their effective widths.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, d.ep.sites, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "viewflex_sessions",
		Description: "List the pages currently kept widened, with their site, state, width and modification count.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, d.ep.sessions, kit.DecodeJSON[struct{}]())
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}
