package metrics

import (
	"sync"
	"testing"
)

func TestIncRateLimitDrop(t *testing.T) {
	// 重置全局状态
	rl = rateLimitStats{}

	tests := []struct {
		name   string
		prefix string
	}{
		{
			name:   "increment with prefix",
			prefix: "cloudsync",
		},
		{
			name:   "increment with empty prefix (defaults to global)",
			prefix: "",
		},
		{
			name:   "increment global",
			prefix: "global",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 获取初始状态
			initialTotal, _ := RateLimitSnapshot()

			// 调用递增函数
			IncRateLimitDrop(tt.prefix)

			// 验证总数增加了
			newTotal, byPrefix := RateLimitSnapshot()
			if newTotal != initialTotal+1 {
				t.Errorf("total = %d, want %d", newTotal, initialTotal+1)
			}

			// 验证前缀计数器
			expectedPrefix := tt.prefix
			if expectedPrefix == "" {
				expectedPrefix = "global"
			}
			if byPrefix[expectedPrefix] == 0 {
				t.Errorf("prefix %s not incremented", expectedPrefix)
			}
		})
	}
}

func TestIncRateLimitDrop_Concurrent(t *testing.T) {
	// 重置全局状态
	rl = rateLimitStats{}

	const goroutines = 100
	const incrementsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < incrementsPerGoroutine; j++ {
				IncRateLimitDrop("concurrent")
			}
		}()
	}

	wg.Wait()

	total, byPrefix := RateLimitSnapshot()
	expectedTotal := uint64(goroutines * incrementsPerGoroutine)

	if total != expectedTotal {
		t.Errorf("total = %d, want %d", total, expectedTotal)
	}

	if byPrefix["concurrent"] != expectedTotal {
		t.Errorf("concurrent prefix = %d, want %d", byPrefix["concurrent"], expectedTotal)
	}
}

func TestEditorCounters(t *testing.T) {
	// 重置全局状态
	ed = editorStats{}

	IncEditorSessionOpened()
	IncEditorSessionOpened()
	IncEditorSubmitted()

	opened, submitted := EditorSnapshot()
	if opened != 2 {
		t.Errorf("opened = %d, want 2", opened)
	}
	if submitted != 1 {
		t.Errorf("submitted = %d, want 1", submitted)
	}
}

func TestSyncCounters(t *testing.T) {
	// 重置全局状态
	sy = syncStats{}

	IncSyncAttempt("backup_to_drive")
	IncSyncAttempt("backup_to_drive")
	IncSyncAttempt("export_to_sheets")
	IncSyncSuccess("backup_to_drive")
	IncSyncFailure("export_to_sheets")

	attempts, successes, failures := SyncSnapshot()

	if attempts["backup_to_drive"] != 2 {
		t.Errorf("backup attempts = %d, want 2", attempts["backup_to_drive"])
	}
	if attempts["export_to_sheets"] != 1 {
		t.Errorf("export attempts = %d, want 1", attempts["export_to_sheets"])
	}
	if successes["backup_to_drive"] != 1 {
		t.Errorf("backup successes = %d, want 1", successes["backup_to_drive"])
	}
	if failures["export_to_sheets"] != 1 {
		t.Errorf("export failures = %d, want 1", failures["export_to_sheets"])
	}
	if len(successes) != 1 || len(failures) != 1 {
		t.Errorf("unexpected extra buckets: successes=%v failures=%v", successes, failures)
	}
}

func TestSyncCounters_Concurrent(t *testing.T) {
	// 重置全局状态
	sy = syncStats{}

	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			IncSyncAttempt("email_report")
			IncSyncSuccess("email_report")
		}()
	}

	wg.Wait()

	attempts, successes, _ := SyncSnapshot()
	if attempts["email_report"] != goroutines {
		t.Errorf("attempts = %d, want %d", attempts["email_report"], goroutines)
	}
	if successes["email_report"] != goroutines {
		t.Errorf("successes = %d, want %d", successes["email_report"], goroutines)
	}
}

func TestToolCallCounters(t *testing.T) {
	// 重置全局状态
	tl = toolStats{}

	IncToolCall("google_drive_create_file_from_text")
	IncToolCall("google_drive_create_file_from_text")
	IncToolCall("gmail_send_email")

	total, by := ToolCallSnapshot()
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if by["google_drive_create_file_from_text"] != 2 {
		t.Errorf("drive calls = %d, want 2", by["google_drive_create_file_from_text"])
	}
	if by["gmail_send_email"] != 1 {
		t.Errorf("gmail calls = %d, want 1", by["gmail_send_email"])
	}
}

func TestToolCallSnapshot_Isolation(t *testing.T) {
	// 重置全局状态
	tl = toolStats{}

	IncToolCall("google_sheets_create_spreadsheet")

	_, by1 := ToolCallSnapshot()

	// 修改快照不应影响内部状态
	by1["google_sheets_create_spreadsheet"] = 99

	_, by2 := ToolCallSnapshot()
	if by2["google_sheets_create_spreadsheet"] != 1 {
		t.Errorf("snapshot isolation failed: got %d, want 1", by2["google_sheets_create_spreadsheet"])
	}
}
