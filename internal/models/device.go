package models

import "time"

// Device binds a siswa account to a physical handset. At most one row per
// user is active; registering a new device deactivates the previous ones.
type Device struct {
    ID              uint   `gorm:"primaryKey"`
    UserIDRef       uint   `gorm:"index:idx_device_user_active,priority:1;uniqueIndex:uniq_user_device,priority:1"`
    DeviceUUID      string `gorm:"size:36;uniqueIndex:uniq_user_device,priority:2"`
    FingerprintHash string `gorm:"size:64;uniqueIndex:uniq_user_device,priority:3"`
    Platform        string `gorm:"size:10"`
    Active          bool   `gorm:"index:idx_device_user_active,priority:2"`
    LastSeenAt      *time.Time
    CreatedAt       time.Time
    UpdatedAt       time.Time
}
