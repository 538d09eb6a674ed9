package models

import (
	"time"
)

type ViolationType string

const (
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationCopyPaste          ViolationType = "copy_paste"
	ViolationFullscreenExit     ViolationType = "fullscreen_exit"
	ViolationSuspiciousActivity ViolationType = "suspicious_activity"
)

func (t ViolationType) IsValid() bool {
	switch t {
	case ViolationTabSwitch, ViolationCopyPaste, ViolationFullscreenExit, ViolationSuspiciousActivity:
		return true
	}
	return false
}

// AttemptViolation is an entry of the append-only proctoring log.
type AttemptViolation struct {
	ID        string        `json:"id" gorm:"primaryKey;size:64"`
	AttemptID string        `json:"-" gorm:"size:64;not null;index:idx_attempt_violations_seq,priority:1"`
	Seq       int           `json:"seq" gorm:"not null;index:idx_attempt_violations_seq,priority:2"`
	Type      ViolationType `json:"type" gorm:"size:32;not null;index"`
	Timestamp time.Time     `json:"timestamp" gorm:"not null"`
	Details   string        `json:"details" gorm:"type:text"`
}

func (AttemptViolation) TableName() string {
	return "attempt_violations"
}
