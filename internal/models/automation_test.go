package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestActionJSONRoundTrip(t *testing.T) {
	in := Action{
		ID:   1700000000000,
		Type: ActionSendEmail,
		Config: &SendEmailConfig{
			EmailSubject: "Job sold",
			EmailBody:    "Congrats on the sale.",
		},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Action
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg, ok := out.Config.(*SendEmailConfig)
	if !ok {
		t.Fatalf("expected *SendEmailConfig, got %T", out.Config)
	}
	if cfg.EmailSubject != "Job sold" || cfg.EmailBody != "Congrats on the sale." {
		t.Fatalf("config fields lost: %+v", cfg)
	}
	if out.ID != in.ID || out.Type != in.Type {
		t.Fatalf("head fields lost: %+v", out)
	}
}

func TestActionUnmarshalRejectsUnknownType(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"id":1,"type":"launch_rocket","config":{}}`), &a)
	if err == nil {
		t.Fatal("expected error for unknown action type")
	}
	if !strings.Contains(err.Error(), "launch_rocket") {
		t.Fatalf("error should name the offending type, got %v", err)
	}
}

func TestUnmarshalTriggerConfigRejectsUnknownType(t *testing.T) {
	if _, err := UnmarshalTriggerConfig("comet_sighted", nil); err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
}

func TestUnmarshalTriggerConfigDecodesVariant(t *testing.T) {
	cfg, err := UnmarshalTriggerConfig(TriggerJobStatusUpdated, []byte(`{"to_status":"sold"}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	jc, ok := cfg.(*JobStatusUpdatedConfig)
	if !ok {
		t.Fatalf("expected *JobStatusUpdatedConfig, got %T", cfg)
	}
	if jc.ToStatus != JobStatusSold {
		t.Fatalf("to_status = %q, want sold", jc.ToStatus)
	}
}

func TestNextActionIDNeverCollides(t *testing.T) {
	now := time.Now()
	list := ActionList{
		{ID: now.UnixMilli(), Type: ActionCreateTask},
		{ID: now.UnixMilli() + 1, Type: ActionCreateTask},
	}
	id := list.NextActionID(now)
	if id != now.UnixMilli()+2 {
		t.Fatalf("id = %d, want %d", id, now.UnixMilli()+2)
	}
	// fresh list falls back to the clock
	if got := (ActionList{}).NextActionID(now); got != now.UnixMilli() {
		t.Fatalf("id = %d, want %d", got, now.UnixMilli())
	}
}

func TestActionListIndexOf(t *testing.T) {
	list := ActionList{
		{ID: 10, Type: ActionCreateTask},
		{ID: 20, Type: ActionSendEmail},
	}
	if got := list.IndexOf(20); got != 1 {
		t.Fatalf("IndexOf(20) = %d, want 1", got)
	}
	if got := list.IndexOf(30); got != -1 {
		t.Fatalf("IndexOf(30) = %d, want -1", got)
	}
}

func TestAutomationCloneIsIndependent(t *testing.T) {
	src := &Automation{
		ID:            7,
		Name:          "Sold follow-up",
		TriggerType:   TriggerJobStatusUpdated,
		TriggerConfig: &JobStatusUpdatedConfig{ToStatus: JobStatusSold},
		Actions: ActionList{
			{ID: 1, Type: ActionCreateTask, Config: &CreateTaskConfig{TaskTitle: "Schedule install"}},
			{ID: 2, Type: ActionWebhook, Config: &WebhookConfig{URL: "https://hooks.example.com/sold"}},
		},
		IsEnabled: true,
	}

	dup := src.Clone()
	if dup == src {
		t.Fatal("clone returned the same pointer")
	}
	if dup.Name != src.Name || dup.TriggerType != src.TriggerType || len(dup.Actions) != 2 {
		t.Fatalf("clone lost fields: %+v", dup)
	}

	// mutating the clone must not reach back into the source
	dup.TriggerConfig.(*JobStatusUpdatedConfig).ToStatus = JobStatusPaid
	dup.Actions[0].Config.(*CreateTaskConfig).TaskTitle = "changed"
	dup.Actions = append(dup.Actions, Action{ID: 3, Type: ActionUpdateInventory, Config: &UpdateInventoryConfig{}})

	if src.TriggerConfig.(*JobStatusUpdatedConfig).ToStatus != JobStatusSold {
		t.Fatal("clone shares trigger config with source")
	}
	if src.Actions[0].Config.(*CreateTaskConfig).TaskTitle != "Schedule install" {
		t.Fatal("clone shares action config with source")
	}
	if len(src.Actions) != 2 {
		t.Fatalf("clone shares action slice with source, len = %d", len(src.Actions))
	}

	if (*Automation)(nil).Clone() != nil {
		t.Fatal("nil clone should stay nil")
	}
}

func TestActionListScanEmptyColumn(t *testing.T) {
	l := ActionList{{ID: 1, Type: ActionWebhook, Config: &WebhookConfig{URL: "https://x"}}}
	if err := l.Scan(""); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("scan of empty column should reset the list, got %d entries", len(l))
	}
}

func TestAutomationUnmarshalJSONDecodesTriggerConfig(t *testing.T) {
	payload := `{
		"name": "Paid follow-up",
		"trigger_type": "job_status_updated",
		"trigger_config": {"to_status": "paid"},
		"actions": [{"id": 1, "type": "create_task", "config": {"task_title": "Send thank-you card"}}],
		"is_enabled": true
	}`
	var a Automation
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	jc, ok := a.TriggerConfig.(*JobStatusUpdatedConfig)
	if !ok {
		t.Fatalf("expected *JobStatusUpdatedConfig, got %T", a.TriggerConfig)
	}
	if jc.ToStatus != JobStatusPaid {
		t.Fatalf("to_status = %q, want paid", jc.ToStatus)
	}
	if len(a.Actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(a.Actions))
	}
	tc, ok := a.Actions[0].Config.(*CreateTaskConfig)
	if !ok {
		t.Fatalf("expected *CreateTaskConfig, got %T", a.Actions[0].Config)
	}
	if tc.TaskTitle != "Send thank-you card" {
		t.Fatalf("task_title = %q", tc.TaskTitle)
	}
}

func TestAutomationValidate(t *testing.T) {
	valid := func() *Automation {
		return &Automation{
			Name:          "Welcome new customers",
			TriggerType:   TriggerNewCustomer,
			TriggerConfig: &NewCustomerConfig{},
			Actions: ActionList{
				{ID: 1, Type: ActionCreateTask, Config: &CreateTaskConfig{TaskTitle: "Call to introduce"}},
			},
			IsEnabled: true,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid automation rejected: %v", err)
	}

	a := valid()
	a.Name = "   "
	if err := a.Validate(); err == nil {
		t.Fatal("blank name accepted")
	}

	a = valid()
	a.Actions = nil
	if err := a.Validate(); err == nil {
		t.Fatal("empty action list accepted")
	}

	a = valid()
	a.TriggerConfig = &JobStatusUpdatedConfig{ToStatus: JobStatusSold}
	if err := a.Validate(); err == nil {
		t.Fatal("mismatched trigger config accepted")
	}

	a = valid()
	a.Actions[0].Config = &CreateTaskConfig{}
	if err := a.Validate(); err == nil {
		t.Fatal("create_task without a title accepted")
	}

	a = valid()
	a.Actions = append(a.Actions, Action{ID: 2, Type: ActionWebhook, Config: &WebhookConfig{}})
	if err := a.Validate(); err == nil {
		t.Fatal("webhook without a url accepted")
	}

	a = valid()
	a.Actions = append(a.Actions, Action{ID: 1, Type: ActionAddToSchedule, Config: &AddToScheduleConfig{}})
	if err := a.Validate(); err == nil {
		t.Fatal("duplicate action ids accepted")
	}
}
