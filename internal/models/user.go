package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleProctor, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may build exams and review attempts.
func (r UserRole) IsStaff() bool {
	return r == RoleTeacher || r == RoleProctor || r == RoleAdmin
}

// Identity is the authenticated caller as resolved by the auth middleware.
type Identity struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}
