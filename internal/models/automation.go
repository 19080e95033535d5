package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// TriggerType identifies the event class that activates an automation.
type TriggerType string

const (
	TriggerNewCustomer      TriggerType = "new_customer"
	TriggerJobStatusUpdated TriggerType = "job_status_updated"
)

func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerNewCustomer, TriggerJobStatusUpdated:
		return true
	}
	return false
}

// ActionType identifies the effect an action performs when its automation
// fires.
type ActionType string

const (
	ActionCreateTask      ActionType = "create_task"
	ActionSendEmail       ActionType = "send_email"
	ActionUpdateInventory ActionType = "update_inventory"
	ActionAddToSchedule   ActionType = "add_to_schedule"
	ActionWebhook         ActionType = "webhook"
)

func (t ActionType) IsValid() bool {
	switch t {
	case ActionCreateTask, ActionSendEmail, ActionUpdateInventory, ActionAddToSchedule, ActionWebhook:
		return true
	}
	return false
}

// TriggerConfig is the parameter set for one trigger type. The variants are
// a closed set; switching trigger types swaps the whole variant, so fields
// never leak across types.
type TriggerConfig interface {
	TriggerType() TriggerType
	Validate() error
}

// NewCustomerConfig has no parameters: the trigger fires for every created
// customer.
type NewCustomerConfig struct{}

func (*NewCustomerConfig) TriggerType() TriggerType { return TriggerNewCustomer }

func (*NewCustomerConfig) Validate() error { return nil }

// JobStatusUpdatedConfig narrows the trigger to one destination status.
// An empty ToStatus matches any status change.
type JobStatusUpdatedConfig struct {
	ToStatus JobStatus `json:"to_status"`
}

func (*JobStatusUpdatedConfig) TriggerType() TriggerType { return TriggerJobStatusUpdated }

func (c *JobStatusUpdatedConfig) Validate() error {
	if c.ToStatus != "" && !c.ToStatus.IsValid() {
		return fmt.Errorf("unknown job status %q", c.ToStatus)
	}
	return nil
}

// NewTriggerConfig returns the empty config variant for a trigger type, or
// nil for an unknown type.
func NewTriggerConfig(t TriggerType) TriggerConfig {
	switch t {
	case TriggerNewCustomer:
		return &NewCustomerConfig{}
	case TriggerJobStatusUpdated:
		return &JobStatusUpdatedConfig{}
	}
	return nil
}

// UnmarshalTriggerConfig decodes the config variant for a trigger type.
// Unknown type tags are rejected.
func UnmarshalTriggerConfig(t TriggerType, data []byte) (TriggerConfig, error) {
	cfg := NewTriggerConfig(t)
	if cfg == nil {
		return nil, fmt.Errorf("unknown trigger type %q", t)
	}
	if len(data) == 0 || string(data) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s trigger config: %w", t, err)
	}
	return cfg, nil
}

// ActionConfig is the parameter set for one action type.
type ActionConfig interface {
	ActionType() ActionType
	Validate() error
}

// CreateTaskConfig 创建任务动作的参数
type CreateTaskConfig struct {
	TaskTitle       string `json:"task_title"`
	TaskDescription string `json:"task_description"`
}

func (*CreateTaskConfig) ActionType() ActionType { return ActionCreateTask }

func (c *CreateTaskConfig) Validate() error {
	if strings.TrimSpace(c.TaskTitle) == "" {
		return errors.New("task title is required")
	}
	return nil
}

// SendEmailConfig 发送邮件动作的参数
type SendEmailConfig struct {
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
}

func (*SendEmailConfig) ActionType() ActionType { return ActionSendEmail }

func (c *SendEmailConfig) Validate() error {
	if strings.TrimSpace(c.EmailSubject) == "" {
		return errors.New("email subject is required")
	}
	return nil
}

// UpdateInventoryConfig has no parameters: inventory is adjusted from the
// job's own material figures.
type UpdateInventoryConfig struct{}

func (*UpdateInventoryConfig) ActionType() ActionType { return ActionUpdateInventory }

func (*UpdateInventoryConfig) Validate() error { return nil }

// AddToScheduleConfig has no parameters: scheduling uses the job's own
// dates.
type AddToScheduleConfig struct{}

func (*AddToScheduleConfig) ActionType() ActionType { return ActionAddToSchedule }

func (*AddToScheduleConfig) Validate() error { return nil }

// WebhookConfig posts the triggering record to an external URL.
type WebhookConfig struct {
	URL string `json:"url"`
}

func (*WebhookConfig) ActionType() ActionType { return ActionWebhook }

func (c *WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("webhook url is required")
	}
	return nil
}

// NewActionConfig returns the empty config variant for an action type, or
// nil for an unknown type.
func NewActionConfig(t ActionType) ActionConfig {
	switch t {
	case ActionCreateTask:
		return &CreateTaskConfig{}
	case ActionSendEmail:
		return &SendEmailConfig{}
	case ActionUpdateInventory:
		return &UpdateInventoryConfig{}
	case ActionAddToSchedule:
		return &AddToScheduleConfig{}
	case ActionWebhook:
		return &WebhookConfig{}
	}
	return nil
}

// UnmarshalActionConfig decodes the config variant for an action type.
// Unknown type tags are rejected.
func UnmarshalActionConfig(t ActionType, data []byte) (ActionConfig, error) {
	cfg := NewActionConfig(t)
	if cfg == nil {
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if len(data) == 0 || string(data) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s action config: %w", t, err)
	}
	return cfg, nil
}

// Action is one effect in an automation's ordered action list. IDs are
// generated from wall-clock milliseconds and are unique within the list;
// they key list edits, not persisted identity.
type Action struct {
	ID     int64        `json:"id"`
	Type   ActionType   `json:"type"`
	Config ActionConfig `json:"config"`
}

// UnmarshalJSON decodes the config variant through the type tag.
func (a *Action) UnmarshalJSON(data []byte) error {
	var head struct {
		ID     int64           `json:"id"`
		Type   ActionType      `json:"type"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	cfg, err := UnmarshalActionConfig(head.Type, head.Config)
	if err != nil {
		return err
	}
	a.ID = head.ID
	a.Type = head.Type
	a.Config = cfg
	return nil
}

// ActionList stores an automation's ordered actions as a JSON text column.
type ActionList []Action

func (l ActionList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *ActionList) Scan(value interface{}) error {
	*l = ActionList{}
	return jsonColumnScan(value, l)
}

// NextActionID returns a millisecond timestamp strictly greater than every
// ID already in the list, so additions within the same millisecond stay
// unique.
func (l ActionList) NextActionID(now time.Time) int64 {
	id := now.UnixMilli()
	for _, a := range l {
		if a.ID >= id {
			id = a.ID + 1
		}
	}
	return id
}

// IndexOf returns the position of the action with the given ID, or -1 when
// no action carries it.
func (l ActionList) IndexOf(id int64) int {
	for i, a := range l {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Automation pairs one trigger with an ordered, non-empty list of actions.
// The typed TriggerConfig travels through the trigger_config text column
// via the BeforeSave/AfterFind hooks.
type Automation struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	Name             string        `gorm:"not null" json:"name"`
	TriggerType      TriggerType   `gorm:"not null;index" json:"trigger_type"` // new_customer, job_status_updated
	TriggerConfig    TriggerConfig `gorm:"-" json:"trigger_config"`
	RawTriggerConfig string        `gorm:"column:trigger_config;type:text" json:"-"`
	Actions          ActionList    `gorm:"type:text" json:"actions"`
	IsEnabled        bool          `gorm:"default:true" json:"is_enabled"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (a *Automation) BeforeSave(tx *gorm.DB) error {
	if a.TriggerConfig == nil {
		a.TriggerConfig = NewTriggerConfig(a.TriggerType)
	}
	if a.TriggerConfig == nil {
		return fmt.Errorf("unknown trigger type %q", a.TriggerType)
	}
	raw, err := json.Marshal(a.TriggerConfig)
	if err != nil {
		return fmt.Errorf("encode trigger config: %w", err)
	}
	a.RawTriggerConfig = string(raw)
	return nil
}

func (a *Automation) AfterFind(tx *gorm.DB) error {
	cfg, err := UnmarshalTriggerConfig(a.TriggerType, []byte(a.RawTriggerConfig))
	if err != nil {
		return err
	}
	a.TriggerConfig = cfg
	return nil
}

// UnmarshalJSON decodes trigger_config through the sibling trigger_type
// tag.
func (a *Automation) UnmarshalJSON(data []byte) error {
	type alias Automation
	aux := struct {
		*alias
		TriggerConfig json.RawMessage `json:"trigger_config"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	cfg, err := UnmarshalTriggerConfig(a.TriggerType, aux.TriggerConfig)
	if err != nil {
		return err
	}
	a.TriggerConfig = cfg
	return nil
}

// CloneTriggerConfig returns an independent copy of cfg.
func CloneTriggerConfig(cfg TriggerConfig) TriggerConfig {
	switch c := cfg.(type) {
	case *NewCustomerConfig:
		out := *c
		return &out
	case *JobStatusUpdatedConfig:
		out := *c
		return &out
	}
	return nil
}

// CloneActionConfig returns an independent copy of cfg.
func CloneActionConfig(cfg ActionConfig) ActionConfig {
	switch c := cfg.(type) {
	case *CreateTaskConfig:
		out := *c
		return &out
	case *SendEmailConfig:
		out := *c
		return &out
	case *UpdateInventoryConfig:
		out := *c
		return &out
	case *AddToScheduleConfig:
		out := *c
		return &out
	case *WebhookConfig:
		out := *c
		return &out
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (a *Automation) Clone() *Automation {
	if a == nil {
		return nil
	}
	out := *a
	out.TriggerConfig = CloneTriggerConfig(a.TriggerConfig)
	out.Actions = make(ActionList, len(a.Actions))
	for i, act := range a.Actions {
		out.Actions[i] = Action{ID: act.ID, Type: act.Type, Config: CloneActionConfig(act.Config)}
	}
	return &out
}

// Validate enforces the invariants an automation must satisfy before it is
// persisted: a name, a known trigger with a matching config, and at least
// one action whose config matches its type and carries its required
// fields.
func (a *Automation) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	if !a.TriggerType.IsValid() {
		return fmt.Errorf("unknown trigger type %q", a.TriggerType)
	}
	tcfg := a.TriggerConfig
	if tcfg == nil {
		tcfg = NewTriggerConfig(a.TriggerType)
	}
	if tcfg.TriggerType() != a.TriggerType {
		return fmt.Errorf("trigger config is for %q, trigger type is %q", tcfg.TriggerType(), a.TriggerType)
	}
	if err := tcfg.Validate(); err != nil {
		return fmt.Errorf("trigger config: %w", err)
	}
	if len(a.Actions) == 0 {
		return errors.New("at least one action is required")
	}
	seen := make(map[int64]struct{}, len(a.Actions))
	for i := range a.Actions {
		act := &a.Actions[i]
		if !act.Type.IsValid() {
			return fmt.Errorf("action %d: unknown action type %q", act.ID, act.Type)
		}
		if _, dup := seen[act.ID]; dup {
			return fmt.Errorf("action %d: duplicate action id", act.ID)
		}
		seen[act.ID] = struct{}{}
		cfg := act.Config
		if cfg == nil {
			cfg = NewActionConfig(act.Type)
		}
		if cfg.ActionType() != act.Type {
			return fmt.Errorf("action %d: config is for %q, action type is %q", act.ID, cfg.ActionType(), act.Type)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", act.ID, err)
		}
	}
	return nil
}
