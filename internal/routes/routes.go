package routes

import (
    "time"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/zaqqye/absensi_backend_v1/internal/attendance"
    "github.com/zaqqye/absensi_backend_v1/internal/config"
    "github.com/zaqqye/absensi_backend_v1/internal/controllers"
    "github.com/zaqqye/absensi_backend_v1/internal/metrics"
    "github.com/zaqqye/absensi_backend_v1/internal/middleware"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, svc *attendance.Service, hubs *ws.Hubs, log *zap.Logger) {
    // Controllers
    expiresMins, err := time.ParseDuration(cfg.JWTExpiresIn + "m")
    if err != nil || expiresMins == 0 {
        expiresMins = 60 * time.Minute
    }
    authCtrl := &controllers.AuthController{DB: db, JWTSecret: cfg.JWTSecret, ExpiresIn: expiresMins}
    adminCtrl := &controllers.AdminController{DB: db}
    classCtrl := &controllers.ClassController{DB: db}
    deviceCtrl := &controllers.DeviceController{DB: db}
    attCtrl := &controllers.AttendanceController{Service: svc}
    cfgCtrl := &controllers.ConfigController{Cfg: cfg}

    // Public
    auth := r.Group("/api/v1/auth")
    {
        // Registration restricted to admin; lives under /api/v1/admin/users
        auth.POST("/login", authCtrl.Login)
    }

    r.GET("/api/v1/config/public", cfgCtrl.Get)
    r.GET("/metrics", gin.WrapH(metrics.Handler()))

    // Protected
    authMW := middleware.AuthMiddleware(db, middleware.AuthConfig{
        JWTSecret:    cfg.JWTSecret,
        JWTExpiresIn: expiresMins,
    })
    api := r.Group("/api/v1", authMW)
    {
        api.GET("/auth/me", authCtrl.Me)

        // Admin-only
        admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
        {
            admin.GET("/users", adminCtrl.ListUsers)
            admin.POST("/users", authCtrl.Register) // admin-only registration (supports role/class/roll_no)
            admin.GET("/users/:id", adminCtrl.GetUser)
            admin.PUT("/users/:id", adminCtrl.UpdateUser)
            admin.DELETE("/users/:id", adminCtrl.DeactivateUser)

            // Classes and enrollments
            admin.GET("/classes", classCtrl.ListClasses)
            admin.POST("/classes", classCtrl.CreateClass)
            admin.POST("/classes/:id/complete", classCtrl.CompleteClass)
            admin.GET("/classes/:id/roster", classCtrl.ListRoster)
            admin.POST("/classes/:id/students", classCtrl.EnrollStudent)
            admin.DELETE("/classes/:id/students/:user_id", classCtrl.UnenrollStudent)

            // Subjects and timetable
            admin.POST("/subjects", classCtrl.CreateSubject)
            admin.POST("/periods", classCtrl.CreatePeriod)
        }

        // Guru area (and admin): session lifecycle
        guru := api.Group("/attendance", middleware.RequireRoles(models.RoleGuru))
        {
            guru.POST("/initiate", attCtrl.Initiate)
            guru.POST("/sessions/:id/regenerate-otp", attCtrl.RegenerateOTP)
            guru.POST("/sessions/:id/close", attCtrl.Close)
            guru.POST("/sessions/:id/manual-mark", attCtrl.ManualMark)
            guru.GET("/sessions/:id/live", attCtrl.LiveStatus)
            guru.GET("/sessions", attCtrl.ListSessions)
        }

        // Siswa area: device binding
        siswa := api.Group("/devices", middleware.RequireRoles(models.RoleSiswa))
        {
            siswa.POST("", deviceCtrl.Register)
            siswa.GET("", deviceCtrl.Mine)
        }

        // Realtime feed; role picks the hub inside the handler
        api.GET("/ws/attendance", ws.AttendanceHandler(hubs, svc, log))
    }
}
