package models

// ConflictType classifies why a slot cannot be claimed.
type ConflictType string

const (
	ConflictCounselorUnavailable ConflictType = "COUNSELOR_UNAVAILABLE"
	ConflictCapacityExceeded     ConflictType = "CAPACITY_EXCEEDED"
	ConflictCounselorNotFound    ConflictType = "COUNSELOR_NOT_FOUND"
)

// ConflictResult is the structured outcome of a pre-write capacity check.
// Message is for display only, callers branch on ConflictType.
type ConflictResult struct {
	HasConflict  bool         `json:"hasConflict"`
	ConflictType ConflictType `json:"conflictType,omitempty"`
	Message      string       `json:"message,omitempty"`
	CounselorID  string       `json:"counselorId,omitempty"`
}

// NoConflict returns a clear result pinned to counselorID.
func NoConflict(counselorID string) *ConflictResult {
	return &ConflictResult{CounselorID: counselorID}
}

// NewConflict builds a conflicting result.
func NewConflict(kind ConflictType, counselorID, message string) *ConflictResult {
	return &ConflictResult{HasConflict: true, ConflictType: kind, CounselorID: counselorID, Message: message}
}
