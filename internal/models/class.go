package models

import "time"

// Class is a batch/semester/section grouping. Once the semester is marked
// complete the class stops accepting attendance sessions.
type Class struct {
    ID          uint   `gorm:"primaryKey"`
    Name        string `gorm:"uniqueIndex"`
    IsActive    bool   `gorm:"index"`
    CompletedAt *time.Time
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

// StudentClass is a supplemental enrollment: a siswa attending a class that
// is not their primary one. Rosters are the union of both.
type StudentClass struct {
    ID         uint   `gorm:"primaryKey"`
    ClassIDRef uint   `gorm:"uniqueIndex:uniq_student_class"`
    UserIDRef  uint   `gorm:"uniqueIndex:uniq_student_class"`
    RollNo     string `gorm:"size:20"`
    CreatedAt  time.Time
}
