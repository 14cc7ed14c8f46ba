package main

import (
    "log"
    "os"

    "github.com/joho/godotenv"

    "github.com/gin-gonic/gin"

    "github.com/zaqqye/absensi_backend_v1/internal/attendance"
    "github.com/zaqqye/absensi_backend_v1/internal/config"
    "github.com/zaqqye/absensi_backend_v1/internal/database"
    "github.com/zaqqye/absensi_backend_v1/internal/logging"
    "github.com/zaqqye/absensi_backend_v1/internal/routes"
    "github.com/zaqqye/absensi_backend_v1/internal/ws"
)

func main() {
    // Load .env (non-fatal if missing in production)
    _ = godotenv.Load()

    cfg := config.Load()

    logger, err := logging.Init(cfg.LogLevel, cfg.Env)
    if err != nil {
        log.Fatalf("logger init failed: %v", err)
    }
    defer logger.Sync()

    db, err := database.Connect(cfg)
    if err != nil {
        log.Fatalf("database connection failed: %v", err)
    }

    if err := database.Migrate(db); err != nil {
        log.Fatalf("database migration failed: %v", err)
    }

    if err := database.SeedAdmin(db, cfg); err != nil {
        log.Fatalf("admin seed failed: %v", err)
    }

    hubs := ws.NewHubs(logger)
    hubs.Run()

    svc := attendance.NewService(db, attendance.Config{
        OTPValiditySeconds:      cfg.OTPValiditySeconds,
        OTPLength:               cfg.OTPLength,
        MaxRetry:                cfg.MaxRetryCount,
        DefaultProximityRadiusM: cfg.DefaultProximityRadiusM,
    }, logger, hubs)

    r := gin.Default()
    routes.Register(r, db, cfg, svc, hubs, logger)

    port := cfg.Port
    if port == "" {
        port = "8080"
    }

    if err := r.Run(":" + port); err != nil {
        log.Println("server exited with error:", err)
        os.Exit(1)
    }
}
