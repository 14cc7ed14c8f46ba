package models

import (
    "time"
)

type Role string

const (
    RoleAdmin Role = "admin"
    RoleGuru  Role = "guru"
    RoleSiswa Role = "siswa"
)

func (r Role) Valid() bool {
    switch r {
    case RoleAdmin, RoleGuru, RoleSiswa:
        return true
    }
    return false
}

// User covers every account type. Siswa rows additionally carry a roll number
// and a primary class reference used when seeding attendance rosters.
type User struct {
    ID         uint   `gorm:"primaryKey"`
    UserID     string `gorm:"uniqueIndex"`
    FullName   string
    Email      string `gorm:"uniqueIndex"`
    Password   string
    Role       Role   `gorm:"size:16;index"`
    RollNo     string `gorm:"size:20"`
    ClassIDRef *uint  `gorm:"index"`
    Verified   bool
    Active     bool
    CreatedAt  time.Time
    UpdatedAt  time.Time
}
