package core

import "fmt"

// OwnershipState is a point-in-time snapshot of a task's ownership, read
// after a conditional claim/assign write matched zero rows. The classifier
// below turns it into an accurate error code without touching the store,
// so it can be tested against synthetic states.
type OwnershipState struct {
	TaskExists   bool
	TaskStatus   TaskStatus
	AgentExists  bool
	ClaimedBy    string
	ClaimedName  string
	AssignedTo   string
	AssignedName string
}

// ClassifyClaimConflict explains why a claim's conditional write did not
// apply. If the snapshot shows no violated precondition, a concurrent
// claim won the race between the write and the diagnostic read and the
// generic CLAIM_FAILED is returned.
func ClassifyClaimConflict(st OwnershipState) error {
	if !st.TaskExists {
		return &NotFoundError{Code: CodeTaskNotFound, Message: "task not found"}
	}
	if !st.AgentExists {
		return &NotFoundError{Code: CodeAgentNotFound, Message: "agent not found"}
	}
	if st.ClaimedBy != "" {
		return &ConflictError{
			Code:       CodeTaskAlreadyClaimed,
			Message:    fmt.Sprintf("task is already claimed by %s", st.ClaimedBy),
			HolderID:   st.ClaimedBy,
			HolderName: st.ClaimedName,
		}
	}
	if st.AssignedTo != "" {
		return &ConflictError{
			Code:       CodeTaskAlreadyAssigned,
			Message:    fmt.Sprintf("task is already assigned to %s", st.AssignedTo),
			HolderID:   st.AssignedTo,
			HolderName: st.AssignedName,
		}
	}
	if st.TaskStatus != TaskStatusAvailable {
		return &ConflictError{
			Code:    CodeTaskNotAvailable,
			Message: fmt.Sprintf("task status is %q, not available", st.TaskStatus),
		}
	}
	return &ConflictError{Code: CodeClaimFailed, Message: "claim did not apply; a concurrent claim may have won"}
}

// ClassifyAssignConflict mirrors ClassifyClaimConflict for the push model.
// Assignable statuses are available and pending.
func ClassifyAssignConflict(st OwnershipState) error {
	if !st.TaskExists {
		return &NotFoundError{Code: CodeTaskNotFound, Message: "task not found"}
	}
	if !st.AgentExists {
		return &NotFoundError{Code: CodeAgentNotFound, Message: "agent not found"}
	}
	if st.ClaimedBy != "" {
		return &ConflictError{
			Code:       CodeTaskAlreadyClaimed,
			Message:    fmt.Sprintf("task is already claimed by %s", st.ClaimedBy),
			HolderID:   st.ClaimedBy,
			HolderName: st.ClaimedName,
		}
	}
	if st.AssignedTo != "" {
		return &ConflictError{
			Code:       CodeTaskAlreadyAssigned,
			Message:    fmt.Sprintf("task is already assigned to %s", st.AssignedTo),
			HolderID:   st.AssignedTo,
			HolderName: st.AssignedName,
		}
	}
	if st.TaskStatus != TaskStatusAvailable && st.TaskStatus != TaskStatusPending {
		return &ConflictError{
			Code:    CodeTaskNotAvailable,
			Message: fmt.Sprintf("task status is %q, not assignable", st.TaskStatus),
		}
	}
	return &ConflictError{Code: CodeAssignFailed, Message: "assignment did not apply; a concurrent writer may have won"}
}
