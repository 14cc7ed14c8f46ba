package models

import "time"

type Status string

const (
    StatusPresent Status = "P"
    StatusAbsent  Status = "A"
    StatusRetry   Status = "R"
    StatusProxy   Status = "X"
)

func (s Status) Display() string {
    switch s {
    case StatusPresent:
        return "Present"
    case StatusProxy:
        return "Proxy"
    case StatusRetry:
        return "Retry"
    default:
        return "Absent"
    }
}

// Attendance is one ledger row per (session, siswa). Rows are bulk-created at
// session open with status Absent and mutated by OTP submissions, manual
// marks, and the close pass.
type Attendance struct {
    ID           uint   `gorm:"primaryKey"`
    SessionIDRef uint   `gorm:"uniqueIndex:uniq_session_student,priority:1"`
    UserIDRef    uint   `gorm:"uniqueIndex:uniq_session_student,priority:2"`
    Status       Status `gorm:"size:1;index;default:A"`
    SubmittedAt  *time.Time
    RetryCount   int `gorm:"default:0"`
    CreatedAt    time.Time
    UpdatedAt    time.Time
}
