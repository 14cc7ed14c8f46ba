package config

import (
    "os"
    "strconv"
)

type Config struct {
    Port       string
    DBHost     string
    DBPort     string
    DBUser     string
    DBPassword string
    DBName     string
    DBSSLMode  string
    JWTSecret    string
    JWTExpiresIn string // minutes
    AdminEmail    string
    AdminPassword string
    AdminFullName string
    // Attendance knobs
    OTPValiditySeconds      int
    OTPLength               int
    MaxRetryCount           int
    DefaultProximityRadiusM int
    // Logging
    LogLevel string
    Env      string // dev|prod
}

func Load() *Config {
    return &Config{
        Port:       getenv("PORT", "8080"),
        DBHost:     getenv("DB_HOST", "localhost"),
        DBPort:     getenv("DB_PORT", "5432"),
        DBUser:     getenv("DB_USER", "postgres"),
        DBPassword: getenv("DB_PASSWORD", "postgres"),
        DBName:     getenv("DB_NAME", "absensi_db"),
        DBSSLMode:  getenv("DB_SSLMODE", "disable"),
        JWTSecret:    getenv("JWT_SECRET", "supersecret_change_me"),
        JWTExpiresIn: getenv("JWT_EXPIRES_IN", "60"),
        AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
        AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
        AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),
        OTPValiditySeconds:      intenv("OTP_VALIDITY_SECONDS", 30),
        OTPLength:               intenv("OTP_LENGTH", 4),
        MaxRetryCount:           intenv("MAX_RETRY_COUNT", 3),
        DefaultProximityRadiusM: intenv("DEFAULT_PROXIMITY_RADIUS_M", 30),
        LogLevel: getenv("LOG_LEVEL", "info"),
        Env:      getenv("ENV", "dev"),
    }
}

func getenv(key, fallback string) string {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    return v
}

func intenv(key string, fallback int) int {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    n, err := strconv.Atoi(v)
    if err != nil || n <= 0 {
        return fallback
    }
    return n
}
