package proctoring

import (
	"fmt"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// SignalType is a raw environment observation reported by the exam client.
type SignalType string

const (
	SignalVisibilityHidden      SignalType = "visibility_hidden"
	SignalWindowBlur            SignalType = "window_blur"
	SignalFullscreenExit        SignalType = "fullscreen_exit"
	SignalFullscreenDeclined    SignalType = "fullscreen_declined"
	SignalCopy                  SignalType = "copy"
	SignalCut                   SignalType = "cut"
	SignalPaste                 SignalType = "paste"
	SignalContextMenu           SignalType = "context_menu"
	SignalWebcamUnavailable     SignalType = "webcam_unavailable"
	SignalMicrophoneUnavailable SignalType = "microphone_unavailable"
)

func (t SignalType) IsValid() bool {
	switch t {
	case SignalVisibilityHidden, SignalWindowBlur, SignalFullscreenExit, SignalFullscreenDeclined,
		SignalCopy, SignalCut, SignalPaste, SignalContextMenu,
		SignalWebcamUnavailable, SignalMicrophoneUnavailable:
		return true
	}
	return false
}

type Signal struct {
	Type    SignalType `json:"type" validate:"required,signal_type"`
	At      time.Time  `json:"at"`
	Details string     `json:"details,omitempty" validate:"max=500"`
}

// Directive tells the client how to react to a signal.
type Directive struct {
	PreventDefault    bool `json:"prevent_default"`
	RequireFullscreen bool `json:"require_fullscreen"`
}

// Translate maps a signal to the violation it produces under the given
// settings. A nil violation means the signal is not observed by this exam.
func Translate(sig Signal, settings models.ProctoringSettings) (*models.AttemptViolation, Directive) {
	var (
		vt        models.ViolationType
		details   string
		directive Directive
	)

	switch sig.Type {
	case SignalVisibilityHidden:
		vt, details = models.ViolationTabSwitch, "Switched away from exam tab"
	case SignalWindowBlur:
		// A real tab switch also fires visibility_hidden; blur alone is not counted.
		return nil, directive
	case SignalFullscreenExit:
		if !settings.FullscreenRequired {
			return nil, directive
		}
		vt, details = models.ViolationFullscreenExit, "Exited fullscreen mode"
		directive.RequireFullscreen = true
	case SignalFullscreenDeclined:
		if !settings.FullscreenRequired {
			return nil, directive
		}
		vt, details = models.ViolationFullscreenExit, "Continued without fullscreen"
	case SignalCopy, SignalCut, SignalPaste, SignalContextMenu:
		if !settings.BlockCopyPaste {
			return nil, directive
		}
		vt, details = models.ViolationCopyPaste, fmt.Sprintf("Attempted %s operation", sig.Type)
		directive.PreventDefault = true
	case SignalWebcamUnavailable:
		if !settings.RequireWebcam {
			return nil, directive
		}
		vt, details = models.ViolationSuspiciousActivity, "Required webcam became unavailable"
	case SignalMicrophoneUnavailable:
		if !settings.RequireMicrophone {
			return nil, directive
		}
		vt, details = models.ViolationSuspiciousActivity, "Required microphone became unavailable"
	default:
		return nil, directive
	}

	if sig.Details != "" {
		details = sig.Details
	}
	return &models.AttemptViolation{
		Type:      vt,
		Timestamp: sig.At,
		Details:   details,
	}, directive
}

// Escalate returns the extra suspicious_activity entry owed after appending v,
// given the tab_switch count including v. It fires once, exactly at the
// crossing of MaxTabSwitches.
func Escalate(v models.AttemptViolation, tabSwitches int, settings models.ProctoringSettings) *models.AttemptViolation {
	if v.Type != models.ViolationTabSwitch {
		return nil
	}
	if tabSwitches != settings.MaxTabSwitches+1 {
		return nil
	}
	return &models.AttemptViolation{
		Type:      models.ViolationSuspiciousActivity,
		Timestamp: v.Timestamp,
		Details:   fmt.Sprintf("Exceeded maximum tab switches (%d)", settings.MaxTabSwitches),
	}
}
