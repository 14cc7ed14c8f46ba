package controllers

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/jackc/pgx/v5/pgconn"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/zaqqye/absensi_backend_v1/internal/models"
)

// ClassController covers the admin surface that feeds attendance rosters:
// classes with semester completion, subjects owned by a guru, timetable
// periods, and supplemental StudentClass enrollments.
type ClassController struct {
    DB *gorm.DB
}

func isUniqueViolation(err error) bool {
    var pgErr *pgconn.PgError
    return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type createClassRequest struct {
    Name string `json:"name" binding:"required"`
}

func (cc *ClassController) CreateClass(c *gin.Context) {
    var req createClassRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    class := models.Class{Name: req.Name, IsActive: true}
    if err := cc.DB.Create(&class).Error; err != nil {
        if isUniqueViolation(err) {
            c.JSON(http.StatusConflict, gin.H{"error": "class name already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, class)
}

func (cc *ClassController) ListClasses(c *gin.Context) {
    var classes []models.Class
    if err := cc.DB.Order("name").Find(&classes).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// CompleteClass marks the semester done. Attendance can no longer be taken
// for a completed class; history stays readable.
func (cc *ClassController) CompleteClass(c *gin.Context) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class id"})
        return
    }
    now := time.Now().UTC()
    res := cc.DB.Model(&models.Class{}).
        Where("id = ? AND is_active = ?", id, true).
        Updates(map[string]interface{}{"is_active": false, "completed_at": now})
    if res.Error != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "class not found or already completed"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "semester marked as complete"})
}

type createSubjectRequest struct {
    Name      string `json:"name" binding:"required"`
    ClassID   uint   `json:"class_id" binding:"required"`
    TeacherID uint   `json:"teacher_id" binding:"required"`
}

func (cc *ClassController) CreateSubject(c *gin.Context) {
    var req createSubjectRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    var teacher models.User
    if err := cc.DB.Where("id = ? AND role = ?", req.TeacherID, models.RoleGuru).First(&teacher).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "teacher not found"})
        return
    }
    var class models.Class
    if err := cc.DB.First(&class, req.ClassID).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "class not found"})
        return
    }
    subject := models.Subject{Name: req.Name, ClassIDRef: class.ID, TeacherIDRef: teacher.ID}
    if err := cc.DB.Create(&subject).Error; err != nil {
        if isUniqueViolation(err) {
            c.JSON(http.StatusConflict, gin.H{"error": "subject already exists for this class"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, subject)
}

type createPeriodRequest struct {
    SubjectID uint   `json:"subject_id" binding:"required"`
    DayOfWeek *int   `json:"day_of_week" binding:"required"`
    PeriodNo  int    `json:"period_no" binding:"required,min=1"`
    StartTime string `json:"start_time"`
    EndTime   string `json:"end_time"`
}

func (cc *ClassController) CreatePeriod(c *gin.Context) {
    var req createPeriodRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "day_of_week must be 0..6"})
        return
    }
    var subject models.Subject
    if err := cc.DB.First(&subject, req.SubjectID).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "subject not found"})
        return
    }
    period := models.Period{
        SubjectIDRef: subject.ID,
        DayOfWeek:    *req.DayOfWeek,
        PeriodNo:     req.PeriodNo,
        StartTime:    req.StartTime,
        EndTime:      req.EndTime,
    }
    if err := cc.DB.Create(&period).Error; err != nil {
        if isUniqueViolation(err) {
            c.JSON(http.StatusConflict, gin.H{"error": "period slot already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, period)
}

type enrollRequest struct {
    UserID uint   `json:"user_id" binding:"required"`
    RollNo string `json:"roll_no"`
}

// EnrollStudent adds a supplemental enrollment. Re-enrolling is a no-op.
func (cc *ClassController) EnrollStudent(c *gin.Context) {
    classID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class id"})
        return
    }
    var req enrollRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    var student models.User
    if err := cc.DB.Where("id = ? AND role = ?", req.UserID, models.RoleSiswa).First(&student).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "student not found"})
        return
    }
    var class models.Class
    if err := cc.DB.First(&class, classID).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "class not found"})
        return
    }
    enrollment := models.StudentClass{
        ClassIDRef: class.ID,
        UserIDRef:  student.ID,
        RollNo:     req.RollNo,
    }
    if err := cc.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollment).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"message": "enrolled", "class_id": class.ID, "user_id": student.ID})
}

func (cc *ClassController) UnenrollStudent(c *gin.Context) {
    classID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class id"})
        return
    }
    userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
        return
    }
    if err := cc.DB.Where("class_id_ref = ? AND user_id_ref = ?", classID, userID).
        Delete(&models.StudentClass{}).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "unenrolled"})
}

// ListRoster shows the union roster the attendance open path will seed.
func (cc *ClassController) ListRoster(c *gin.Context) {
    classID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class id"})
        return
    }
    enrolled := cc.DB.Model(&models.StudentClass{}).Select("user_id_ref").Where("class_id_ref = ?", classID)
    var students []models.User
    if err := cc.DB.
        Where("role = ? AND verified = ?", models.RoleSiswa, true).
        Where("class_id_ref = ? OR id IN (?)", classID, enrolled).
        Order("roll_no").
        Find(&students).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    out := make([]gin.H, 0, len(students))
    for _, s := range students {
        out = append(out, gin.H{
            "user_id":   s.UserID,
            "email":     s.Email,
            "full_name": s.FullName,
            "roll_no":   s.RollNo,
        })
    }
    c.JSON(http.StatusOK, gin.H{"students": out, "total": len(out)})
}
