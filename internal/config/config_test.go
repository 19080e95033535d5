package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.JWT.Secret == "" {
		t.Error("expected JWT.Secret to be set")
	}
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
}

func TestConfig_DatabaseDSN(t *testing.T) {
	cfg := GetDefaultConfig()

	dsn := cfg.Database.DSN()
	if dsn == "" {
		t.Fatal("expected a DSN")
	}
	for _, part := range []string{"host=localhost", "port=5432", "dbname=foamcrm", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN missing %q: %s", part, dsn)
		}
	}
}

func TestConfig_CloudToolsEndpoint(t *testing.T) {
	c := CloudToolsConfig{ProxyURL: "https://mcp.example.com/api/mcp/s/", AccessToken: "tenant-abc123"}
	if got := c.Endpoint(); got != "https://mcp.example.com/api/mcp/s/tenant-abc123/mcp" {
		t.Errorf("endpoint = %q", got)
	}

	// without a token the proxy URL is used as-is
	c.AccessToken = ""
	if got := c.Endpoint(); got != "https://mcp.example.com/api/mcp/s" {
		t.Errorf("endpoint = %q", got)
	}
}

func TestConfig_CloudSyncDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	// 终态提示默认保留 4 秒
	if cfg.CloudSync.StatusTTL != 4000*time.Millisecond {
		t.Errorf("status TTL = %v, want 4s", cfg.CloudSync.StatusTTL)
	}
	if cfg.CloudTools.Timeout == 0 {
		t.Error("expected cloud tools timeout to be set")
	}
	if cfg.CloudTools.ClientName == "" {
		t.Error("expected cloud tools client name to be set")
	}
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS to be enabled")
	}
	if !cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting to be enabled")
	}
	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected requests per minute to be set")
	}
	if cfg.Security.RBAC.Enabled {
		t.Error("RBAC should be disabled by default")
	}
}

func TestConfig_TracingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Monitoring.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Monitoring.Tracing.Endpoint == "" {
		t.Error("expected tracing endpoint to be set")
	}
	if cfg.Monitoring.Tracing.SampleRatio == 0 {
		t.Error("expected sample ratio to be set")
	}
	if cfg.Monitoring.Tracing.ServiceName != "foamcrm" {
		t.Errorf("service name = %q", cfg.Monitoring.Tracing.ServiceName)
	}
}

func TestInitLogger_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Level = "invalid"
	cfg.Log.Output = "stdout"

	// 应该使用默认的 info 级别
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with invalid level failed: %v", err)
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "file"
	cfg.Log.FilePath = t.TempDir() + "/foamcrm-test.log"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with file output failed: %v", err)
	}
}
