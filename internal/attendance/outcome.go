package attendance

import "github.com/zaqqye/absensi_backend_v1/internal/models"

const otpResultType = "otp_result"

// Outcome is the structured reply for one OTP submission. Every path through
// the verifier produces one; none of them surface as an error to the
// realtime layer.
type Outcome struct {
    Type              string        `json:"type"`
    Success           bool          `json:"success"`
    Message           string        `json:"message"`
    Status            models.Status `json:"status,omitempty"`
    StudentEmail      string        `json:"student_email,omitempty"`
    RetryAvailable    bool          `json:"retry_available"`
    Blocked           bool          `json:"blocked"`
    RetryCount        int           `json:"retry_count,omitempty"`
    RemainingAttempts int           `json:"remaining_attempts,omitempty"`

    // Mutated reports whether this submission wrote the ledger. The realtime
    // layer keys broadcasts on it so fan-out stays at-most-once per physical
    // write.
    Mutated bool `json:"-"`
}

func failOutcome(msg string) Outcome {
    return Outcome{Type: otpResultType, Message: msg}
}

func blockedOutcome(retryCount int) Outcome {
    return Outcome{
        Type:       otpResultType,
        Message:    "Too many failed attempts. Contact your teacher for manual marking.",
        Blocked:    true,
        RetryCount: retryCount,
    }
}

func alreadyMarkedOutcome(studentEmail string) Outcome {
    return Outcome{
        Type:         otpResultType,
        Success:      true,
        Message:      "Attendance already marked",
        Status:       models.StatusPresent,
        StudentEmail: studentEmail,
    }
}
