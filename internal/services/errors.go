package services

import "errors"

// Store-level sentinels shared by the CRM services. Handlers translate
// them to HTTP codes.
var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("duplicate record")
	ErrValidation = errors.New("invalid input")
)

// Editor session sentinels.
var (
	ErrSessionNotFound = errors.New("editor session not found")
	ErrActionNotFound  = errors.New("action not found")
	ErrLastAction      = errors.New("an automation needs at least one action")
	ErrInvalidDraft    = errors.New("draft failed validation")
	ErrTriggerMismatch = errors.New("trigger config does not match the trigger type")
	ErrConfigMismatch  = errors.New("action config does not match the action type")
)

// Cloud sync sentinels. The first is the busy signal for the single
// active slot; ErrNoJobs and ErrNoCompanyEmail are pre-flight
// short-circuits; ErrNotConnected marks connect/handshake failures.
var (
	ErrSyncInProgress = errors.New("a sync operation is already running")
	ErrNoJobs         = errors.New("no jobs to export")
	ErrNoCompanyEmail = errors.New("company email not set")
	ErrNotConnected   = errors.New("cloud tools connection failed")
	ErrToolCall       = errors.New("workspace tool call failed")
)
