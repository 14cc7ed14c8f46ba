package attendance

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "go.uber.org/zap"
    "gorm.io/gorm"

    "github.com/zaqqye/absensi_backend_v1/internal/geo"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
)

type SubmitRequest struct {
    SessionID    uint
    OTP          string
    StudentEmail string
    DeviceID     string
    Latitude     *float64
    Longitude    *float64
    // BadCoords marks location data that arrived but failed to parse. The
    // verifier treats it like an out-of-range reading, never a hard error.
    BadCoords bool
}

// Submit runs the ordered verification sequence for one OTP claim and
// returns a displayable outcome for every path. Ledger writes use
// update-if-matches conditions so concurrent submissions for the same
// student serialize at the datastore without cross-row locking.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) Outcome {
    var session models.Session
    if err := s.db.WithContext(ctx).First(&session, req.SessionID).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return failOutcome("Session not found")
        }
        return s.unexpectedOutcome("submit: load session", err, req)
    }
    if !session.IsActive {
        return failOutcome("Session closed")
    }

    if req.StudentEmail == "" {
        return failOutcome("Student email not provided")
    }
    var student models.User
    err := s.db.WithContext(ctx).
        Where("email = ? AND role = ?", req.StudentEmail, models.RoleSiswa).
        First(&student).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return failOutcome("Student not found")
        }
        return s.unexpectedOutcome("submit: load student", err, req)
    }

    if req.DeviceID != "" {
        var bound int64
        err := s.db.WithContext(ctx).Model(&models.Device{}).
            Where("user_id_ref = ? AND device_uuid = ? AND active = ?", student.ID, req.DeviceID, true).
            Count(&bound).Error
        if err != nil {
            return s.unexpectedOutcome("submit: check device", err, req)
        }
        if bound == 0 {
            return failOutcome("Device not authorized")
        }
    }

    var att models.Attendance
    err = s.db.WithContext(ctx).
        Where("session_id_ref = ? AND user_id_ref = ?", session.ID, student.ID).
        First(&att).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return failOutcome("You are not enrolled in this class")
        }
        return s.unexpectedOutcome("submit: load record", err, req)
    }

    if att.Status == models.StatusPresent {
        return alreadyMarkedOutcome(student.Email)
    }
    if att.RetryCount >= s.cfg.MaxRetry {
        return blockedOutcome(att.RetryCount)
    }

    // Expiry is a timing condition, not a failed attempt: no counter change.
    if !s.IsOTPValid(&session) {
        return failOutcome("OTP expired. Wait for teacher to generate new OTP.")
    }

    current := ""
    if session.OTP != nil {
        current = *session.OTP
    }
    if !strings.EqualFold(current, req.OTP) {
        return s.recordMismatch(ctx, att, req)
    }

    status, message := s.resolveGeofence(&session, req)
    return s.recordVerified(ctx, att, student, status, message, req)
}

// recordMismatch burns one attempt. The guarded increment never lifts the
// counter past the cap and never touches a row a concurrent submission
// already marked Present.
func (s *Service) recordMismatch(ctx context.Context, att models.Attendance, req SubmitRequest) Outcome {
    res := s.db.WithContext(ctx).Model(&models.Attendance{}).
        Where("id = ? AND status <> ? AND retry_count < ?", att.ID, models.StatusPresent, s.cfg.MaxRetry).
        Update("retry_count", gorm.Expr("retry_count + 1"))
    if res.Error != nil {
        return s.unexpectedOutcome("submit: increment retry", res.Error, req)
    }
    if err := s.db.WithContext(ctx).First(&att, att.ID).Error; err != nil {
        return s.unexpectedOutcome("submit: reload record", err, req)
    }
    if res.RowsAffected == 0 {
        // A concurrent submission won the row first; report its result.
        if att.Status == models.StatusPresent {
            return alreadyMarkedOutcome(req.StudentEmail)
        }
        return blockedOutcome(att.RetryCount)
    }
    remaining := s.cfg.MaxRetry - att.RetryCount
    if remaining <= 0 {
        out := blockedOutcome(att.RetryCount)
        out.Mutated = true
        return out
    }
    return Outcome{
        Type:              otpResultType,
        Message:           fmt.Sprintf("Invalid OTP. %d attempt(s) remaining.", remaining),
        RetryAvailable:    true,
        RetryCount:        att.RetryCount,
        RemainingAttempts: remaining,
        Mutated:           true,
    }
}

func (s *Service) recordVerified(ctx context.Context, att models.Attendance, student models.User, status models.Status, message string, req SubmitRequest) Outcome {
    now := s.now().UTC()
    res := s.db.WithContext(ctx).Model(&models.Attendance{}).
        Where("id = ? AND status <> ?", att.ID, models.StatusPresent).
        Updates(map[string]interface{}{"status": status, "submitted_at": now})
    if res.Error != nil {
        return s.unexpectedOutcome("submit: mark record", res.Error, req)
    }
    if res.RowsAffected == 0 {
        // Lost the race to another successful submission for this student.
        return alreadyMarkedOutcome(student.Email)
    }
    return Outcome{
        Type:         otpResultType,
        Success:      true,
        Message:      message,
        Status:       status,
        StudentEmail: student.Email,
        Mutated:      true,
    }
}

// resolveGeofence decides Present vs Proxy for a correct code. Remote
// sessions and onsite sessions without teacher coordinates skip the check.
func (s *Service) resolveGeofence(session *models.Session, req SubmitRequest) (models.Status, string) {
    if session.Mode != models.ModeOnsite || session.TeacherLatitude == nil || session.TeacherLongitude == nil {
        return models.StatusPresent, "Attendance marked successfully"
    }
    if req.BadCoords {
        return models.StatusProxy, "Attendance flagged: invalid location data"
    }
    if req.Latitude == nil || req.Longitude == nil {
        return models.StatusProxy, "Attendance flagged: location not available"
    }
    distance := geo.DistanceMeters(*session.TeacherLatitude, *session.TeacherLongitude, *req.Latitude, *req.Longitude)
    if distance <= float64(session.ProximityRadiusM) {
        return models.StatusPresent, "Attendance marked successfully"
    }
    return models.StatusProxy, "Attendance flagged: outside classroom range"
}

func (s *Service) unexpectedOutcome(op string, err error, req SubmitRequest) Outcome {
    s.log.Error("attendance submission failure",
        zap.String("op", op),
        zap.Uint("session_id", req.SessionID),
        zap.String("student_email", req.StudentEmail),
        zap.Error(err),
    )
    return failOutcome("Something went wrong. Please try again.")
}
