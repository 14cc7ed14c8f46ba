package controllers

import (
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/utils"
)

type DeviceController struct {
    DB *gorm.DB
}

type registerDeviceRequest struct {
    DeviceUUID  string `json:"device_uuid" binding:"required"`
    Fingerprint string `json:"fingerprint" binding:"required"`
    Platform    string `json:"platform"`
}

// Register binds the calling siswa to this handset and deactivates every
// previous one, keeping at most one active device per student. A handset
// seen before is reactivated in place.
func (dc *DeviceController) Register(c *gin.Context) {
    user := currentUser(c)
    if user.Role != models.RoleSiswa {
        c.JSON(http.StatusForbidden, gin.H{"error": "only siswa can register devices"})
        return
    }

    var req registerDeviceRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if _, err := uuid.Parse(req.DeviceUUID); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "device_uuid must be a UUID"})
        return
    }

    now := time.Now().UTC()
    device := models.Device{
        UserIDRef:       user.ID,
        DeviceUUID:      req.DeviceUUID,
        FingerprintHash: utils.SHA256Hex(req.Fingerprint),
        Platform:        req.Platform,
        Active:          true,
        LastSeenAt:      &now,
    }

    err := dc.DB.Transaction(func(tx *gorm.DB) error {
        if err := tx.Model(&models.Device{}).
            Where("user_id_ref = ? AND active = ?", user.ID, true).
            Update("active", false).Error; err != nil {
            return err
        }
        return tx.Clauses(clause.OnConflict{
            Columns: []clause.Column{
                {Name: "user_id_ref"}, {Name: "device_uuid"}, {Name: "fingerprint_hash"},
            },
            DoUpdates: clause.Assignments(map[string]interface{}{
                "active":       true,
                "last_seen_at": now,
                "platform":     device.Platform,
            }),
        }).Create(&device).Error
    })
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, gin.H{
        "message":     "device registered",
        "device_uuid": device.DeviceUUID,
        "platform":    device.Platform,
    })
}

// Mine lists the calling user's devices, active first.
func (dc *DeviceController) Mine(c *gin.Context) {
    user := currentUser(c)
    var devices []models.Device
    if err := dc.DB.Where("user_id_ref = ?", user.ID).
        Order("active DESC, updated_at DESC").
        Find(&devices).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    out := make([]gin.H, 0, len(devices))
    for _, d := range devices {
        out = append(out, gin.H{
            "device_uuid":  d.DeviceUUID,
            "platform":     d.Platform,
            "active":       d.Active,
            "last_seen_at": d.LastSeenAt,
        })
    }
    c.JSON(http.StatusOK, gin.H{"devices": out})
}
