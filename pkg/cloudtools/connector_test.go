package cloudtools

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// proxyStub is an in-memory MCP server exposing the proxy's tool catalog.
// Every dial() builds a fresh in-memory transport pair so the connector
// can reconnect after Close.
type proxyStub struct {
	t      *testing.T
	server *mcp.Server

	mu       sync.Mutex
	dials    int
	calls    []recordedCall
	sessions []*mcp.ServerSession
}

type recordedCall struct {
	tool string
	args map[string]interface{}
}

func newProxyStub(t *testing.T) *proxyStub {
	s := &proxyStub{t: t}
	server := mcp.NewServer(&mcp.Implementation{Name: "proxy-stub", Version: "v1.0.0"}, nil)

	for _, name := range []string{
		ToolCreateDriveFile,
		ToolCreateSpreadsheet,
		ToolCreateDocument,
		ToolSendEmail,
	} {
		s.addEchoTool(server, name)
	}

	// 模拟代理端工具执行失败
	mcp.AddTool(server, &mcp.Tool{
		Name:        "always_fails",
		Description: "stub tool that reports an execution error",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]interface{}) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "quota exceeded"}},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "multi_part",
		Description: "stub tool returning several text parts",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]interface{}) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: "part one"},
				&mcp.TextContent{Text: "part two"},
			},
		}, nil, nil
	})

	s.server = server
	return s
}

func (s *proxyStub) addEchoTool(server *mcp.Server, name string) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        name,
		Description: "stub " + name,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]interface{}) (*mcp.CallToolResult, any, error) {
		s.mu.Lock()
		s.calls = append(s.calls, recordedCall{tool: name, args: args})
		s.mu.Unlock()
		title, _ := args["title"].(string)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "ok: " + name + " " + title}},
		}, nil, nil
	})
}

// dial is the connector's Dialer: each call connects a fresh server
// session over a new in-memory pair and hands back the client side.
func (s *proxyStub) dial() mcp.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	session, err := s.server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		s.t.Errorf("proxy stub connect: %v", err)
		return clientTransport
	}
	s.sessions = append(s.sessions, session)
	return clientTransport
}

func (s *proxyStub) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *proxyStub) recorded() []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *proxyStub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		session.Close()
	}
}

func newTestConnector(t *testing.T) (*Connector, *proxyStub) {
	stub := newProxyStub(t)
	t.Cleanup(stub.close)

	c := NewConnector(&Config{Endpoint: "http://unused.invalid/mcp"}, logrus.New())
	c.Dialer = stub.dial
	return c, stub
}

func TestConnectorLazyConnect(t *testing.T) {
	c, stub := newTestConnector(t)

	if c.IsConnected() {
		t.Fatal("connector should not connect at construction")
	}
	if stub.dialCount() != 0 {
		t.Fatalf("expected 0 dials before first call, got %d", stub.dialCount())
	}

	out, err := c.CallTool(context.Background(), "multi_part", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "part one\npart two" {
		t.Errorf("joined text = %q, want %q", out, "part one\npart two")
	}
	if !c.IsConnected() {
		t.Error("connector should report connected after first call")
	}
	if stub.dialCount() != 1 {
		t.Errorf("expected 1 dial, got %d", stub.dialCount())
	}
}

func TestConnectorConnectOnceUnderConcurrency(t *testing.T) {
	c, stub := newTestConnector(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.CallTool(context.Background(), "multi_part", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if stub.dialCount() != 1 {
		t.Errorf("expected exactly 1 dial for %d concurrent calls, got %d", workers, stub.dialCount())
	}
}

func TestConnectorCallToolError(t *testing.T) {
	c, _ := newTestConnector(t)

	out, err := c.CallTool(context.Background(), "always_fails", nil)
	if err == nil {
		t.Fatal("expected error from flagged result")
	}
	if out != "quota exceeded" {
		t.Errorf("error text = %q, want %q", out, "quota exceeded")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error should carry the tool text, got %v", err)
	}
}

func TestConnectorLifecycle(t *testing.T) {
	c, stub := newTestConnector(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("expected connected after Connect")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("expected disconnected after Close")
	}
	// Close 幂等
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// A call after Close dials again.
	if _, err := c.CallTool(context.Background(), "multi_part", nil); err != nil {
		t.Fatalf("CallTool after Close: %v", err)
	}
	if stub.dialCount() != 2 {
		t.Errorf("expected 2 dials across reconnect, got %d", stub.dialCount())
	}
}

func TestConnectorTypedWrappers(t *testing.T) {
	c, stub := newTestConnector(t)
	ctx := context.Background()

	if _, err := c.CreateDriveFile(ctx, "customers-backup-2026-01-02.json", `[{"id":1}]`); err != nil {
		t.Fatalf("CreateDriveFile: %v", err)
	}
	if _, err := c.CreateSpreadsheet(ctx, "FoamCRM Jobs Export 2026-01-02", `[]`); err != nil {
		t.Fatalf("CreateSpreadsheet: %v", err)
	}
	if _, err := c.CreateDocument(ctx, "FoamCRM Business Report 2026-01-02", "report"); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := c.SendEmail(ctx, "owner@example.com", "subject", "body"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}

	calls := stub.recorded()
	if len(calls) != 4 {
		t.Fatalf("expected 4 tool calls, got %d", len(calls))
	}

	wantTools := []string{ToolCreateDriveFile, ToolCreateSpreadsheet, ToolCreateDocument, ToolSendEmail}
	for i, want := range wantTools {
		if calls[i].tool != want {
			t.Errorf("call %d routed to %q, want %q", i, calls[i].tool, want)
		}
		if instructions, _ := calls[i].args["instructions"].(string); instructions == "" {
			t.Errorf("call %d missing instructions", i)
		}
	}

	if got, _ := calls[0].args["content"].(string); got != `[{"id":1}]` {
		t.Errorf("drive file content = %q", got)
	}
	if got, _ := calls[1].args["json_data"].(string); got != `[]` {
		t.Errorf("spreadsheet json_data = %q", got)
	}
	if got, _ := calls[3].args["to"].(string); got != "owner@example.com" {
		t.Errorf("email recipient = %q", got)
	}
	if got, _ := calls[3].args["subject"].(string); got != "subject" {
		t.Errorf("email subject = %q", got)
	}
}

func TestConnectorWrapperValidation(t *testing.T) {
	c, stub := newTestConnector(t)
	ctx := context.Background()

	if _, err := c.CreateDriveFile(ctx, "", "content"); err == nil {
		t.Error("empty title should be rejected")
	}
	if _, err := c.CreateSpreadsheet(ctx, "", "[]"); err == nil {
		t.Error("empty spreadsheet title should be rejected")
	}
	if _, err := c.CreateDocument(ctx, "", "content"); err == nil {
		t.Error("empty document title should be rejected")
	}
	if _, err := c.SendEmail(ctx, "", "s", "b"); err == nil {
		t.Error("empty recipient should be rejected")
	}
	if stub.dialCount() != 0 {
		t.Errorf("validation failures should not dial, got %d dials", stub.dialCount())
	}
}
