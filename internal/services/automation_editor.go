package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"foamcrm/internal/metrics"
	"foamcrm/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SaveFunc persists a finished draft and returns the stored row. The
// automation service's Save satisfies it.
type SaveFunc func(ctx context.Context, automation *models.Automation) (*models.Automation, error)

// EditorManager owns the open automation editor sessions, keyed by a
// server-issued session id.
type EditorManager struct {
	mu       sync.RWMutex
	sessions map[string]*EditorSession
	save     SaveFunc
	logger   *logrus.Logger
	now      func() time.Time
}

// NewEditorManager 创建自动化编辑会话管理器
func NewEditorManager(save SaveFunc, logger *logrus.Logger) *EditorManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &EditorManager{
		sessions: make(map[string]*EditorSession),
		save:     save,
		logger:   logger,
		now:      time.Now,
	}
}

// Open starts a session. A nil source opens the default create draft; a
// non-nil source is deep-copied so edits never touch the stored row.
func (m *EditorManager) Open(source *models.Automation) *EditorSession {
	session := &EditorSession{
		id:     uuid.NewString(),
		save:   m.save,
		logger: m.logger,
		now:    m.now,
	}
	session.Load(source)

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	metrics.IncEditorSessionOpened()
	m.logger.Infof("Opened editor session %s (source automation %d)", session.id, session.SourceID())
	return session
}

// Get returns the session for sid.
func (m *EditorManager) Get(sid string) (*EditorSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sid]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sid, ErrSessionNotFound)
	}
	return session, nil
}

// Discard drops a session without saving. This is the cancel path.
func (m *EditorManager) Discard(sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sid]; !ok {
		return fmt.Errorf("session %s: %w", sid, ErrSessionNotFound)
	}
	delete(m.sessions, sid)
	m.logger.Infof("Discarded editor session %s", sid)
	return nil
}

// Count returns the number of open sessions.
func (m *EditorManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EditorSession is one server-owned draft of an automation. Every edit
// rebuilds the draft copy-on-write and returns the fresh snapshot, so a
// snapshot handed out earlier never changes under its holder. Snapshots
// are read-only.
type EditorSession struct {
	mu     sync.Mutex
	id     string
	save   SaveFunc
	logger *logrus.Logger
	now    func() time.Time

	draft    *models.Automation
	sourceID uint
	dirty    bool
}

// ID returns the session key.
func (s *EditorSession) ID() string { return s.id }

// SourceID returns the automation the session edits, 0 when creating.
func (s *EditorSession) SourceID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceID
}

// Dirty reports whether the draft has unsaved edits.
func (s *EditorSession) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot returns the current draft.
func (s *EditorSession) Snapshot() *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Load replaces the draft wholesale: the default create draft when
// source is nil, a deep copy of source otherwise. Nothing from the
// previous draft survives.
func (s *EditorSession) Load(source *models.Automation) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source == nil {
		s.draft = s.defaultDraft()
		s.sourceID = 0
	} else {
		s.draft = source.Clone()
		s.sourceID = source.ID
	}
	s.dirty = false
	return s.draft
}

// defaultDraft is the blank form: unnamed, new_customer trigger, one
// create_task action, enabled.
func (s *EditorSession) defaultDraft() *models.Automation {
	return &models.Automation{
		TriggerType:   models.TriggerNewCustomer,
		TriggerConfig: models.NewTriggerConfig(models.TriggerNewCustomer),
		Actions: models.ActionList{{
			ID:     models.ActionList(nil).NextActionID(s.now()),
			Type:   models.ActionCreateTask,
			Config: models.NewActionConfig(models.ActionCreateTask),
		}},
		IsEnabled: true,
	}
}

// SetName 更新草稿名称
func (s *EditorSession) SetName(name string) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := *s.draft
	draft.Name = name
	s.draft = &draft
	s.dirty = true
	return s.draft
}

// SetEnabled 更新草稿启用状态
func (s *EditorSession) SetEnabled(enabled bool) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := *s.draft
	draft.IsEnabled = enabled
	s.draft = &draft
	s.dirty = true
	return s.draft
}

// SetTriggerType switches the trigger. A real type change resets the
// config to the new type's empty variant so no fields leak across; the
// same type again keeps the config.
func (s *EditorSession) SetTriggerType(t models.TriggerType) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.IsValid() {
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrValidation, t)
	}

	draft := *s.draft
	if draft.TriggerType != t {
		draft.TriggerType = t
		draft.TriggerConfig = models.NewTriggerConfig(t)
	}
	s.draft = &draft
	s.dirty = true
	return s.draft, nil
}

// SetTriggerConfig replaces the trigger parameters. The variant must
// match the draft's current trigger type.
func (s *EditorSession) SetTriggerConfig(cfg models.TriggerConfig) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil || cfg.TriggerType() != s.draft.TriggerType {
		return nil, fmt.Errorf("%w: trigger is %q", ErrTriggerMismatch, s.draft.TriggerType)
	}

	draft := *s.draft
	draft.TriggerConfig = cfg
	s.draft = &draft
	s.dirty = true
	return s.draft, nil
}

// AddAction appends a create_task action with a fresh id and an empty
// config. New actions always go to the end of the list.
func (s *EditorSession) AddAction() *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.draft.Actions
	actions := make(models.ActionList, len(old)+1)
	copy(actions, old)
	actions[len(old)] = models.Action{
		ID:     old.NextActionID(s.now()),
		Type:   models.ActionCreateTask,
		Config: models.NewActionConfig(models.ActionCreateTask),
	}

	draft := *s.draft
	draft.Actions = actions
	s.draft = &draft
	s.dirty = true
	return s.draft
}

// UpdateActionType switches one action's type. A real change resets that
// action's config to the new empty variant; the same type keeps it. The
// other actions are carried over untouched.
func (s *EditorSession) UpdateActionType(id int64, t models.ActionType) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.IsValid() {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrValidation, t)
	}
	idx := s.draft.Actions.IndexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("action %d: %w", id, ErrActionNotFound)
	}

	actions := make(models.ActionList, len(s.draft.Actions))
	copy(actions, s.draft.Actions)
	if actions[idx].Type != t {
		actions[idx].Type = t
		actions[idx].Config = models.NewActionConfig(t)
	}

	draft := *s.draft
	draft.Actions = actions
	s.draft = &draft
	s.dirty = true
	return s.draft, nil
}

// UpdateActionConfig replaces one action's parameters. The variant must
// match that action's type.
func (s *EditorSession) UpdateActionConfig(id int64, cfg models.ActionConfig) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.draft.Actions.IndexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("action %d: %w", id, ErrActionNotFound)
	}
	if cfg == nil || cfg.ActionType() != s.draft.Actions[idx].Type {
		return nil, fmt.Errorf("%w: action %d is %q", ErrConfigMismatch, id, s.draft.Actions[idx].Type)
	}

	actions := make(models.ActionList, len(s.draft.Actions))
	copy(actions, s.draft.Actions)
	actions[idx].Config = cfg

	draft := *s.draft
	draft.Actions = actions
	s.draft = &draft
	s.dirty = true
	return s.draft, nil
}

// RemoveAction deletes one action. Removing the last remaining action is
// refused and the draft stays as it was.
func (s *EditorSession) RemoveAction(id int64) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.draft.Actions.IndexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("action %d: %w", id, ErrActionNotFound)
	}
	if len(s.draft.Actions) == 1 {
		return nil, ErrLastAction
	}

	actions := make(models.ActionList, 0, len(s.draft.Actions)-1)
	actions = append(actions, s.draft.Actions[:idx]...)
	actions = append(actions, s.draft.Actions[idx+1:]...)

	draft := *s.draft
	draft.Actions = actions
	s.draft = &draft
	s.dirty = true
	return s.draft, nil
}

// Submit validates the draft and persists it through the save callback,
// exactly once per call. On success the stored row becomes the new draft
// and the session stays open; on failure the draft and dirty flag are
// left alone so the user can fix and resubmit.
func (s *EditorSession) Submit(ctx context.Context) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := *s.draft
	draft.Name = strings.TrimSpace(draft.Name)
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	saved, err := s.save(ctx, &draft)
	if err != nil {
		return nil, err
	}

	s.draft = saved
	s.sourceID = saved.ID
	s.dirty = false

	metrics.IncEditorSubmitted()
	s.logger.Infof("Editor session %s submitted automation %d (%s)", s.id, saved.ID, saved.Name)
	return s.draft, nil
}
