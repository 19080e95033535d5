// Package cloudtools wraps the MCP tool proxy that fronts the Google
// Workspace tools (Drive, Sheets, Docs, Gmail). The proxy multiplexes a
// fixed tool catalog behind a tenant-specific URL; callers talk to it
// through a single shared Connector rather than per-call clients so the
// MCP session handshake happens once.
package cloudtools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tool names fixed by the proxy's catalog.
const (
	ToolCreateDriveFile   = "google_drive_create_file_from_text"
	ToolCreateSpreadsheet = "google_sheets_create_spreadsheet"
	ToolCreateDocument    = "google_docs_create_document_from_text"
	ToolSendEmail         = "gmail_send_email"
)

// Config 连接 MCP 工具代理所需的配置
type Config struct {
	// Endpoint is the full proxy URL including the tenant access path.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds each HTTP exchange on the streamable transport.
	Timeout time.Duration `yaml:"timeout"`
	// ClientName/ClientVersion identify us during the MCP handshake.
	ClientName    string `yaml:"client_name"`
	ClientVersion string `yaml:"client_version"`
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		ClientName:    "foamcrm",
		ClientVersion: "1.0.0",
	}
}

// WorkspaceTools 定义云端工具调用接口
type WorkspaceTools interface {
	Connect(ctx context.Context) error
	CreateDriveFile(ctx context.Context, title, content string) (string, error)
	CreateSpreadsheet(ctx context.Context, title, jsonData string) (string, error)
	CreateDocument(ctx context.Context, title, content string) (string, error)
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

// Connector holds one MCP client session against the tool proxy. The
// first call dials; subsequent calls reuse the live session. All session
// state is guarded by mu so concurrent first calls serialize and the
// losers reuse the winner's session.
type Connector struct {
	config *Config
	client *mcp.Client
	logger *logrus.Logger

	// Dialer overrides the transport used by Connect. Tests point it at
	// mcp.NewInMemoryTransports; nil means streamable HTTP against
	// config.Endpoint.
	Dialer func() mcp.Transport

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewConnector 创建新的云端工具连接器
func NewConnector(config *Config, logger *logrus.Logger) *Connector {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.ClientName == "" {
		config.ClientName = DefaultConfig().ClientName
	}
	if config.ClientVersion == "" {
		config.ClientVersion = DefaultConfig().ClientVersion
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Connector{
		config: config,
		logger: logger,
		client: mcp.NewClient(&mcp.Implementation{
			Name:    config.ClientName,
			Version: config.ClientVersion,
		}, nil),
	}
}

// transport builds the MCP transport for one connection attempt.
func (c *Connector) transport() mcp.Transport {
	if c.Dialer != nil {
		return c.Dialer()
	}
	return &mcp.StreamableClientTransport{
		Endpoint: c.config.Endpoint,
		HTTPClient: &http.Client{
			Timeout:   c.config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		// The proxy only answers direct calls; no server-initiated
		// notifications to listen for.
		DisableStandaloneSSE: true,
	}
}

// ensureSession returns the live session, dialing on first use.
// Callers must not hold mu.
func (c *Connector) ensureSession(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	session, err := c.client.Connect(ctx, c.transport(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to cloud tool proxy: %w", err)
	}
	c.session = session
	c.logger.WithField("client", c.config.ClientName).Info("Connected to cloud tool proxy")
	return session, nil
}

// Connect forces the MCP handshake now instead of on the first tool call.
func (c *Connector) Connect(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// IsConnected reports whether a live session is held.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Close tears down the session. A later call dials again.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("close cloud tool session: %w", err)
	}
	return nil
}

// CallTool invokes one named tool and returns the joined text of all
// text content parts. Results the proxy flags as errors return the text
// and a non-nil error so callers can log what the tool said.
func (c *Connector) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}

	c.logger.WithField("tool", name).Debug("Calling cloud tool")
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	text := textContent(result)
	if result.IsError {
		return text, fmt.Errorf("tool %s returned an error: %s", name, text)
	}
	return text, nil
}

// textContent joins every TextContent part of a tool result.
func textContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CreateDriveFile 在 Google Drive 中创建文本文件
func (c *Connector) CreateDriveFile(ctx context.Context, title, content string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("file title is required")
	}
	return c.CallTool(ctx, ToolCreateDriveFile, map[string]interface{}{
		"instructions": fmt.Sprintf("Create a file named %s in Google Drive with the provided content.", title),
		"title":        title,
		"content":      content,
	})
}

// CreateSpreadsheet 创建 Google Sheets 表格，jsonData 为行记录的 JSON 数组
func (c *Connector) CreateSpreadsheet(ctx context.Context, title, jsonData string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("spreadsheet title is required")
	}
	return c.CallTool(ctx, ToolCreateSpreadsheet, map[string]interface{}{
		"instructions": fmt.Sprintf("Create a spreadsheet named %s from the provided JSON rows, one column per key.", title),
		"title":        title,
		"json_data":    jsonData,
	})
}

// CreateDocument 在 Google Docs 中创建文档
func (c *Connector) CreateDocument(ctx context.Context, title, content string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("document title is required")
	}
	return c.CallTool(ctx, ToolCreateDocument, map[string]interface{}{
		"instructions": fmt.Sprintf("Create a document named %s with the provided content.", title),
		"title":        title,
		"content":      content,
	})
}

// SendEmail 通过 Gmail 发送邮件
func (c *Connector) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("recipient is required")
	}
	return c.CallTool(ctx, ToolSendEmail, map[string]interface{}{
		"instructions": fmt.Sprintf("Send an email to %s with the provided subject and body.", to),
		"to":           to,
		"subject":      subject,
		"body":         body,
	})
}
