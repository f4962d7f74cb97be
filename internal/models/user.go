package models

// UserRole represents the roles recognised in bearer tokens.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleCounselor UserRole = "COUNSELOR"
	RoleStudent   UserRole = "STUDENT"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
