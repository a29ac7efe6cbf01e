package core

import (
	"errors"
	"fmt"
)

// Stable error codes carried in every error envelope.
const (
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeInvalidCredential   = "INVALID_CREDENTIAL"
	CodeTaskNotFound        = "TASK_NOT_FOUND"
	CodeAgentNotFound       = "AGENT_NOT_FOUND"
	CodeEpicNotFound        = "EPIC_NOT_FOUND"
	CodeSprintNotFound      = "SPRINT_NOT_FOUND"
	CodeTaskAlreadyClaimed  = "TASK_ALREADY_CLAIMED"
	CodeTaskAlreadyAssigned = "TASK_ALREADY_ASSIGNED"
	CodeTaskNotAvailable    = "TASK_NOT_AVAILABLE"
	CodeClaimFailed         = "CLAIM_FAILED"
	CodeAssignFailed        = "ASSIGN_FAILED"
	CodeNodeLocked          = "NODE_LOCKED"
	CodeNotLockHolder       = "NOT_LOCK_HOLDER"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrNotFound is the generic missing-row sentinel; stores wrap it with the
// entity kind so handlers can map it to a coded 404.
var ErrNotFound = errors.New("not found")

// ConflictError reports an ownership conflict on a task. Holder names the
// competing claimant/assignee so the caller can diagnose the loss.
type ConflictError struct {
	Code       string
	Message    string
	HolderID   string
	HolderName string
}

func (e *ConflictError) Error() string {
	if e.HolderID != "" {
		return fmt.Sprintf("%s: %s (held by %s)", e.Code, e.Message, e.HolderID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LockHeldError reports a lock acquire or release rejected because a
// different holder owns the (node, graph) lock.
type LockHeldError struct {
	Code string
	Lock EditLock
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("%s: node %s in graph %s held by %s", e.Code, e.Lock.NodeID, e.Lock.GraphID, e.Lock.HolderID)
}

// NotFoundError wraps ErrNotFound with the coded entity kind.
type NotFoundError struct {
	Code    string
	Message string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TaskNotFound builds the coded 404 for a missing task.
func TaskNotFound(id string) *NotFoundError {
	return &NotFoundError{Code: CodeTaskNotFound, Message: fmt.Sprintf("task %s not found", id)}
}

// AgentNotFound builds the coded 404 for a missing agent.
func AgentNotFound(id string) *NotFoundError {
	return &NotFoundError{Code: CodeAgentNotFound, Message: fmt.Sprintf("agent %s not found", id)}
}
