package controllers

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/zaqqye/absensi_backend_v1/internal/config"
)

type ConfigController struct {
    Cfg *config.Config
}

// Get exposes the attendance knobs clients need to render countdowns and
// retry hints without hardcoding server defaults.
func (cc *ConfigController) Get(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "otp_validity_seconds":       cc.Cfg.OTPValiditySeconds,
        "otp_length":                 cc.Cfg.OTPLength,
        "max_retry_count":            cc.Cfg.MaxRetryCount,
        "default_proximity_radius_m": cc.Cfg.DefaultProximityRadiusM,
    })
}
