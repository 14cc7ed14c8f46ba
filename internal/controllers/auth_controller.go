package controllers

import (
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/golang-jwt/jwt/v5"
    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/zaqqye/absensi_backend_v1/internal/middleware"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/utils"
)

// AuthController is the minimal identity boundary. Anything richer (Google,
// refresh rotation) lives in the dedicated auth service; this backend only
// needs a verified user and role per request.
type AuthController struct {
    DB        *gorm.DB
    JWTSecret string
    ExpiresIn time.Duration
}

type registerRequest struct {
    FullName string       `json:"full_name" binding:"required"`
    Email    string       `json:"email" binding:"required,email"`
    Password string       `json:"password" binding:"required,min=6"`
    Role     models.Role  `json:"role"`
    RollNo   string       `json:"roll_no"`
    ClassID  *uint        `json:"class_id"`
    Active   *bool        `json:"active"`
    Verified *bool        `json:"verified"`
}

type loginRequest struct {
    Email    string `json:"email" binding:"required,email"`
    Password string `json:"password" binding:"required"`
}

// Register is admin-only user creation.
func (a *AuthController) Register(c *gin.Context) {
    var req registerRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    pw, err := utils.HashPassword(req.Password)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
        return
    }

    role := req.Role
    if role == "" {
        role = models.RoleSiswa
    }
    if !IsValidRole(role) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
        return
    }

    active := true
    if req.Active != nil {
        active = *req.Active
    }
    verified := true
    if req.Verified != nil {
        verified = *req.Verified
    }

    user := models.User{
        UserID:     uuid.NewString(),
        FullName:   req.FullName,
        Email:      req.Email,
        Password:   pw,
        Role:       role,
        RollNo:     req.RollNo,
        ClassIDRef: req.ClassID,
        Verified:   verified,
        Active:     active,
    }

    if err := a.DB.Create(&user).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, gin.H{
        "message":   "registered",
        "user_id":   user.UserID,
        "email":     user.Email,
        "full_name": user.FullName,
        "role":      user.Role,
    })
}

func (a *AuthController) Login(c *gin.Context) {
    var req loginRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var user models.User
    if err := a.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
        return
    }

    if !user.Active || !utils.CheckPassword(user.Password, req.Password) {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
        return
    }

    token, err := a.issueToken(user)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "access_token": token,
        "token_type":   "Bearer",
        "expires_in":   int(a.ExpiresIn.Seconds()),
        "role":         user.Role,
    })
}

func (a *AuthController) Me(c *gin.Context) {
    user := currentUser(c)
    c.JSON(http.StatusOK, gin.H{
        "user_id":    user.UserID,
        "email":      user.Email,
        "full_name":  user.FullName,
        "role":       user.Role,
        "roll_no":    user.RollNo,
        "class_id":   user.ClassIDRef,
        "verified":   user.Verified,
        "active":     user.Active,
        "created_at": user.CreatedAt,
        "updated_at": user.UpdatedAt,
    })
}

func (a *AuthController) issueToken(user models.User) (string, error) {
    now := time.Now().UTC()
    claims := middleware.Claims{
        UserID: user.UserID,
        Role:   user.Role,
        Email:  user.Email,
        RegisteredClaims: jwt.RegisteredClaims{
            Issuer:    "absensi_backend_v1",
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(now.Add(a.ExpiresIn)),
            Subject:   strconv.FormatUint(uint64(user.ID), 10),
        },
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return token.SignedString([]byte(a.JWTSecret))
}
