package controllers

import (
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/zaqqye/absensi_backend_v1/internal/models"
)

type AdminController struct {
    DB *gorm.DB
}

type userResponse struct {
    ID       uint        `json:"id"`
    UserID   string      `json:"user_id"`
    FullName string      `json:"full_name"`
    Email    string      `json:"email"`
    Role     models.Role `json:"role"`
    RollNo   string      `json:"roll_no,omitempty"`
    ClassID  *uint       `json:"class_id,omitempty"`
    Verified bool        `json:"verified"`
    Active   bool        `json:"active"`
}

func toUserResponse(u models.User) userResponse {
    return userResponse{
        ID:       u.ID,
        UserID:   u.UserID,
        FullName: u.FullName,
        Email:    u.Email,
        Role:     u.Role,
        RollNo:   u.RollNo,
        ClassID:  u.ClassIDRef,
        Verified: u.Verified,
        Active:   u.Active,
    }
}

func (ac *AdminController) ListUsers(c *gin.Context) {
    q := ac.DB.Model(&models.User{})
    if role := c.Query("role"); role != "" {
        if !models.Role(role).Valid() {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role filter"})
            return
        }
        q = q.Where("role = ?", role)
    }
    if classID := c.Query("class_id"); classID != "" {
        q = q.Where("class_id_ref = ?", classID)
    }
    var users []models.User
    if err := q.Order("full_name").Find(&users).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    out := make([]userResponse, 0, len(users))
    for _, u := range users {
        out = append(out, toUserResponse(u))
    }
    c.JSON(http.StatusOK, gin.H{"users": out, "total": len(out)})
}

func (ac *AdminController) GetUser(c *gin.Context) {
    var user models.User
    if err := ac.DB.First(&user, c.Param("id")).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }
    c.JSON(http.StatusOK, toUserResponse(user))
}

type updateUserRequest struct {
    FullName *string `json:"full_name"`
    RollNo   *string `json:"roll_no"`
    ClassID  *uint   `json:"class_id"`
    Verified *bool   `json:"verified"`
    Active   *bool   `json:"active"`
}

// UpdateUser patches the mutable account fields. Role and email are fixed
// after registration.
func (ac *AdminController) UpdateUser(c *gin.Context) {
    var user models.User
    if err := ac.DB.First(&user, c.Param("id")).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }
    var req updateUserRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    updates := map[string]interface{}{}
    if req.FullName != nil {
        updates["full_name"] = *req.FullName
    }
    if req.RollNo != nil {
        updates["roll_no"] = *req.RollNo
    }
    if req.ClassID != nil {
        var class models.Class
        if err := ac.DB.First(&class, *req.ClassID).Error; err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "class not found"})
            return
        }
        updates["class_id_ref"] = *req.ClassID
    }
    if req.Verified != nil {
        updates["verified"] = *req.Verified
    }
    if req.Active != nil {
        updates["active"] = *req.Active
    }
    if len(updates) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
        return
    }
    if err := ac.DB.Model(&user).Updates(updates).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, toUserResponse(user))
}

// DeactivateUser soft-disables the account. Attendance history is kept.
func (ac *AdminController) DeactivateUser(c *gin.Context) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
        return
    }
    res := ac.DB.Model(&models.User{}).Where("id = ? AND active = ?", id, true).Update("active", false)
    if res.Error != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found or already inactive"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "user deactivated"})
}
