package metrics

import (
	"sync"
	"sync/atomic"
)

// rateLimitStats holds counters for rate limit drops (HTTP 429).
// Kept simple/thread-safe for use from middlewares and exposition.
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}

// editorStats 编辑器会话计数器
type editorStats struct {
	opened    uint64
	submitted uint64
}

var ed editorStats

// IncEditorSessionOpened 记录一次编辑器会话创建
func IncEditorSessionOpened() {
	atomic.AddUint64(&ed.opened, 1)
}

// IncEditorSubmitted 记录一次成功提交
func IncEditorSubmitted() {
	atomic.AddUint64(&ed.submitted, 1)
}

// EditorSnapshot returns the current editor counters.
func EditorSnapshot() (opened, submitted uint64) {
	return atomic.LoadUint64(&ed.opened), atomic.LoadUint64(&ed.submitted)
}

// syncStats 云同步操作计数器（按操作名分桶）
type syncStats struct {
	mu        sync.Mutex
	attempts  map[string]uint64
	successes map[string]uint64
	failures  map[string]uint64
}

var sy syncStats

func bump(m *map[string]uint64, key string) {
	if *m == nil {
		*m = make(map[string]uint64)
	}
	(*m)[key]++
}

// IncSyncAttempt increments the attempt counter for the given operation
// (e.g. "backup_to_drive"). Called once per accepted run, before work starts.
func IncSyncAttempt(op string) {
	sy.mu.Lock()
	bump(&sy.attempts, op)
	sy.mu.Unlock()
}

// IncSyncSuccess increments the success counter for the given operation.
func IncSyncSuccess(op string) {
	sy.mu.Lock()
	bump(&sy.successes, op)
	sy.mu.Unlock()
}

// IncSyncFailure increments the failure counter for the given operation.
func IncSyncFailure(op string) {
	sy.mu.Lock()
	bump(&sy.failures, op)
	sy.mu.Unlock()
}

// SyncSnapshot returns copies of the per-operation sync counters.
func SyncSnapshot() (attempts, successes, failures map[string]uint64) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	attempts = make(map[string]uint64, len(sy.attempts))
	for k, v := range sy.attempts {
		attempts[k] = v
	}
	successes = make(map[string]uint64, len(sy.successes))
	for k, v := range sy.successes {
		successes[k] = v
	}
	failures = make(map[string]uint64, len(sy.failures))
	for k, v := range sy.failures {
		failures[k] = v
	}
	return attempts, successes, failures
}

// toolStats 工具调用计数器（按工具名分桶）
type toolStats struct {
	total  uint64
	mu     sync.Mutex
	byTool map[string]uint64
}

var tl toolStats

// IncToolCall increments the call counter for the given workspace tool name.
func IncToolCall(tool string) {
	atomic.AddUint64(&tl.total, 1)
	tl.mu.Lock()
	if tl.byTool == nil {
		tl.byTool = make(map[string]uint64)
	}
	tl.byTool[tool]++
	tl.mu.Unlock()
}

// ToolCallSnapshot returns a copy of the current tool call counters.
func ToolCallSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&tl.total)
	tl.mu.Lock()
	defer tl.mu.Unlock()
	by = make(map[string]uint64, len(tl.byTool))
	for k, v := range tl.byTool {
		by[k] = v
	}
	return total, by
}
