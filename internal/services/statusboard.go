package services

import (
	"sync"
	"time"
)

// Status levels rendered by the sync status bar.
const (
	StatusLevelInfo    = "info"
	StatusLevelSuccess = "success"
	StatusLevelError   = "error"
)

// DefaultStatusTTL is how long terminal sync messages stay visible when
// the board is constructed without an explicit ttl.
const DefaultStatusTTL = 4000 * time.Millisecond

// StatusMessage 云同步状态栏当前展示的消息
type StatusMessage struct {
	Text  string    `json:"text"`
	Level string    `json:"level"`
	SetAt time.Time `json:"set_at"`
}

// IsZero reports the idle state, nothing to show.
func (m StatusMessage) IsZero() bool {
	return m.Text == "" && m.Level == ""
}

// StatusBoard holds the single status line the sync UI renders. Writers
// replace the whole message. A transient message clears itself after its
// ttl unless a newer write already took the slot; the generation counter
// keeps stale timers from wiping fresh messages.
type StatusBoard struct {
	mu         sync.Mutex
	current    StatusMessage
	generation uint64
	defaultTTL time.Duration
	onChange   func(StatusMessage)
}

// NewStatusBoard 创建状态栏，defaultTTL <= 0 时使用默认值
func NewStatusBoard(defaultTTL time.Duration) *StatusBoard {
	if defaultTTL <= 0 {
		defaultTTL = DefaultStatusTTL
	}
	return &StatusBoard{defaultTTL: defaultTTL}
}

// OnChange registers the single observer invoked after every change.
// Set it during wiring, before the board is shared across goroutines.
func (b *StatusBoard) OnChange(fn func(StatusMessage)) {
	b.onChange = fn
}

// Set replaces the board content. ttl == 0 keeps the message until the
// next write; ttl > 0 arms a timer that clears it unless something newer
// replaced it first.
func (b *StatusBoard) Set(text, level string, ttl time.Duration) {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.current = StatusMessage{Text: text, Level: level, SetAt: time.Now()}
	msg := b.current
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
	if ttl > 0 {
		time.AfterFunc(ttl, func() { b.clearIf(gen) })
	}
}

// SetTransient posts a message that clears after the default ttl.
func (b *StatusBoard) SetTransient(text, level string) {
	b.Set(text, level, b.defaultTTL)
}

// Current returns the visible message; the zero value means idle.
func (b *StatusBoard) Current() StatusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Clear unconditionally empties the board.
func (b *StatusBoard) Clear() {
	b.mu.Lock()
	b.generation++
	b.current = StatusMessage{}
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(StatusMessage{})
	}
}

// clearIf resets the board only when gen is still the latest write.
func (b *StatusBoard) clearIf(gen uint64) {
	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		return
	}
	b.generation++
	b.current = StatusMessage{}
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(StatusMessage{})
	}
}
