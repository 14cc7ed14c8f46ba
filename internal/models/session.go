package models

import "time"

type SessionMode string

const (
    ModeOnsite SessionMode = "onsite"
    ModeRemote SessionMode = "remote"
)

func (m SessionMode) Valid() bool {
    return m == ModeOnsite || m == ModeRemote
}

// Session is one attendance-taking window for a period on a date. History is
// append-only: closing and reopening creates a new row. At most one row per
// (period, date) may be active at a time; the partial unique index enforces
// it under concurrent opens, the open path's pre-check keeps the common case
// a clean conflict reply.
type Session struct {
    ID               uint    `gorm:"primaryKey"`
    PeriodIDRef      uint    `gorm:"index:idx_session_period_date,priority:1;index:uniq_active_session,unique,where:is_active,priority:1"`
    Date             string  `gorm:"size:10;index:idx_session_period_date,priority:2;index:uniq_active_session,unique,priority:2"`
    OTP              *string `gorm:"size:8"`
    OTPIssuedAt      *time.Time
    IsActive         bool `gorm:"index"`
    ClosedAt         *time.Time
    Mode             SessionMode `gorm:"size:10"`
    TeacherLatitude  *float64
    TeacherLongitude *float64
    ProximityRadiusM int `gorm:"default:30"`
    CreatedAt        time.Time
    UpdatedAt        time.Time
}
