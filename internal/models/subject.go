package models

import "time"

// Subject is taught by exactly one guru within one class.
type Subject struct {
    ID           uint   `gorm:"primaryKey"`
    Name         string `gorm:"uniqueIndex:uniq_subject_class,priority:2"`
    ClassIDRef   uint   `gorm:"uniqueIndex:uniq_subject_class,priority:1"`
    TeacherIDRef uint   `gorm:"index"`
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

// Period is one timetable slot for a subject. DayOfWeek follows time.Weekday
// (0 = Sunday). StartTime/EndTime are "15:04" strings and optional; ad-hoc
// periods created at session open leave them empty.
type Period struct {
    ID           uint   `gorm:"primaryKey"`
    SubjectIDRef uint   `gorm:"uniqueIndex:uniq_period_slot,priority:1"`
    DayOfWeek    int    `gorm:"uniqueIndex:uniq_period_slot,priority:2"`
    PeriodNo     int    `gorm:"uniqueIndex:uniq_period_slot,priority:3"`
    StartTime    string `gorm:"size:5"`
    EndTime      string `gorm:"size:5"`
    CreatedAt    time.Time
}
