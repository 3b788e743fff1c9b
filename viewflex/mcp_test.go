package viewflex

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMCPImpl = &mcp.Implementation{Name: "viewflex-test", Version: "0.1.0"}

func mcpSession(t *testing.T, d *Daemon) *mcp.ClientSession {
	t.Helper()
	srv := d.NewMCPServer()

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text, res.IsError
}

func TestMCP_Tools(t *testing.T) {
	d := testDaemon(t, nil)
	session := mcpSession(t, d)

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"viewflex_get_width", "viewflex_set_width", "viewflex_sites", "viewflex_sessions"}, names)
}

func TestMCP_WidthRoundTrip(t *testing.T) {
	d := testDaemon(t, nil)
	doc := geminiDoc(t)
	attach(t, d, doc)
	session := mcpSession(t, d)

	text, isErr := callTool(t, session, "viewflex_get_width", map[string]any{"site": "gemini"})
	require.False(t, isErr, text)
	var w WidthInfo
	require.NoError(t, json.Unmarshal([]byte(text), &w))
	assert.Equal(t, 80, w.Width)
	assert.False(t, w.Stored)

	text, isErr = callTool(t, session, "viewflex_set_width", map[string]any{"site": "gemini", "width": 140})
	require.False(t, isErr, text)
	require.NoError(t, json.Unmarshal([]byte(text), &w))
	assert.Equal(t, 140, w.Width)
	require.NotNil(t, w.Notified)
	assert.True(t, *w.Notified)
	eventuallyWidth(t, doc, "conv", "140rem")

	text, isErr = callTool(t, session, "viewflex_sessions", map[string]any{})
	require.False(t, isErr, text)
	var sessions []SessionInfo
	require.NoError(t, json.Unmarshal([]byte(text), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "gemini", string(sessions[0].Site))

	text, isErr = callTool(t, session, "viewflex_sites", map[string]any{})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"display_name":"Google Gemini"`)
}

func TestMCP_Errors(t *testing.T) {
	d := testDaemon(t, nil)
	session := mcpSession(t, d)

	text, isErr := callTool(t, session, "viewflex_set_width", map[string]any{"site": "gemini", "width": 10})
	assert.True(t, isErr)
	assert.Contains(t, text, "out of range")

	_, isErr = callTool(t, session, "viewflex_get_width", map[string]any{"site": "bing"})
	assert.True(t, isErr)
}
