package controllers

import (
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/zaqqye/absensi_backend_v1/internal/attendance"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/utils"
)

type AttendanceController struct {
    Service *attendance.Service
}

type initiateRequest struct {
    PeriodID         utils.FlexibleString `json:"period_id"`
    SubjectID        utils.FlexibleString `json:"subject_id"`
    Date             string               `json:"date"`
    Mode             models.SessionMode   `json:"mode"`
    TeacherLatitude  *float64             `json:"teacher_latitude"`
    TeacherLongitude *float64             `json:"teacher_longitude"`
    ProximityRadius  int                  `json:"proximity_radius"`
}

// Initiate opens a new attendance session for one of the teacher's periods
// or subjects and returns the code the class should be shown.
func (ac *AttendanceController) Initiate(c *gin.Context) {
    user := currentUser(c)

    var req initiateRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    periodID, _ := req.PeriodID.Uint()
    subjectID, _ := req.SubjectID.Uint()

    result, err := ac.Service.Open(c.Request.Context(), attendance.OpenRequest{
        TeacherID:        user.ID,
        PeriodID:         periodID,
        SubjectID:        subjectID,
        Date:             req.Date,
        Mode:             req.Mode,
        TeacherLatitude:  req.TeacherLatitude,
        TeacherLongitude: req.TeacherLongitude,
        ProximityRadiusM: req.ProximityRadius,
    })
    if err != nil {
        respondAttendanceError(c, err)
        return
    }
    c.JSON(http.StatusCreated, gin.H{
        "session_id":             result.Session.ID,
        "otp":                    result.OTP,
        "expires_in_seconds":     result.ExpiresInSeconds,
        "enrolled_student_count": result.EnrolledCount,
        "enrolled_students":      result.StudentEmails,
        "mode":                   result.Session.Mode,
        "date":                   result.Session.Date,
    })
}

func (ac *AttendanceController) RegenerateOTP(c *gin.Context) {
    user := currentUser(c)
    sessionID, ok := sessionIDParam(c)
    if !ok {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
        return
    }
    result, err := ac.Service.RegenerateOTP(c.Request.Context(), user.ID, sessionID)
    if err != nil {
        respondAttendanceError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "session_id":         result.SessionID,
        "otp":                result.OTP,
        "expires_in_seconds": result.ExpiresInSeconds,
        "message":            "OTP regenerated successfully",
    })
}

func (ac *AttendanceController) Close(c *gin.Context) {
    user := currentUser(c)
    sessionID, ok := sessionIDParam(c)
    if !ok {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
        return
    }
    if err := ac.Service.Close(c.Request.Context(), user.ID, sessionID); err != nil {
        respondAttendanceError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "Session closed successfully"})
}

type manualMarkRequest struct {
    StudentEmail string        `json:"student_email" binding:"required,email"`
    Status       models.Status `json:"status" binding:"required"`
}

func (ac *AttendanceController) ManualMark(c *gin.Context) {
    user := currentUser(c)
    sessionID, ok := sessionIDParam(c)
    if !ok {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
        return
    }
    var req manualMarkRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if err := ac.Service.ManualMark(c.Request.Context(), user.ID, sessionID, req.StudentEmail, req.Status); err != nil {
        respondAttendanceError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "Attendance updated successfully"})
}

func (ac *AttendanceController) LiveStatus(c *gin.Context) {
    user := currentUser(c)
    sessionID, ok := sessionIDParam(c)
    if !ok {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
        return
    }
    result, err := ac.Service.LiveStatus(c.Request.Context(), user.ID, sessionID)
    if err != nil {
        respondAttendanceError(c, err)
        return
    }
    c.JSON(http.StatusOK, result)
}

func (ac *AttendanceController) ListSessions(c *gin.Context) {
    user := currentUser(c)
    subjectID, err := strconv.ParseUint(c.Query("subject_id"), 10, 64)
    if err != nil || subjectID == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id required"})
        return
    }
    sessions, serr := ac.Service.ListSessions(c.Request.Context(), user.ID, uint(subjectID))
    if serr != nil {
        respondAttendanceError(c, serr)
        return
    }
    c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func currentUser(c *gin.Context) models.User {
    uVal, _ := c.Get("user")
    return uVal.(models.User)
}

// sessionIDParam reads the session id from the route's :id segment.
func sessionIDParam(c *gin.Context) (uint, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return uint(id), true
}

func respondAttendanceError(c *gin.Context, err error) {
    e := attendance.AsError(err)
    switch e.Kind {
    case attendance.KindNotFound:
        c.JSON(http.StatusNotFound, gin.H{"error": e.Message})
    case attendance.KindForbidden:
        c.JSON(http.StatusForbidden, gin.H{"error": e.Message})
    case attendance.KindConflict:
        c.JSON(http.StatusConflict, gin.H{
            "error":      e.Message,
            "session_id": e.SessionID,
            "otp":        e.OTP,
        })
    case attendance.KindInvalid:
        c.JSON(http.StatusBadRequest, gin.H{"error": e.Message})
    default:
        c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
    }
}
