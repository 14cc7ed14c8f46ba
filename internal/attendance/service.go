package attendance

import (
    "context"
    "errors"
    "sort"
    "strings"
    "time"

    "github.com/jackc/pgx/v5/pgconn"
    "go.uber.org/zap"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/zaqqye/absensi_backend_v1/internal/metrics"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/utils"
)

// Config holds the attendance knobs. Zero values fall back to the defaults
// the mobile apps were built against.
type Config struct {
    OTPValiditySeconds      int
    OTPLength               int
    MaxRetry                int
    DefaultProximityRadiusM int
}

func (c Config) withDefaults() Config {
    if c.OTPValiditySeconds <= 0 {
        c.OTPValiditySeconds = 30
    }
    if c.OTPLength <= 0 {
        c.OTPLength = 4
    }
    if c.MaxRetry <= 0 {
        c.MaxRetry = 3
    }
    if c.DefaultProximityRadiusM <= 0 {
        c.DefaultProximityRadiusM = 30
    }
    return c
}

// Broadcaster fans session lifecycle and submission events out to connected
// clients. Implementations must not block: a slow subscriber can never stall
// a submission.
type Broadcaster interface {
    AttendanceStarted(sessionID uint, message string)
    AttendanceUpdate(sessionID uint, studentEmail string, status models.Status)
    AttendanceClosed(sessionID uint, message string)
    OTPRegenerated(sessionID uint, message string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) AttendanceStarted(uint, string)                {}
func (nopBroadcaster) AttendanceUpdate(uint, string, models.Status) {}
func (nopBroadcaster) AttendanceClosed(uint, string)                {}
func (nopBroadcaster) OTPRegenerated(uint, string)                  {}

// Service owns the session lifecycle and the attendance ledger.
type Service struct {
    db    *gorm.DB
    cfg   Config
    log   *zap.Logger
    bcast Broadcaster
    now   func() time.Time
}

func NewService(db *gorm.DB, cfg Config, log *zap.Logger, bcast Broadcaster) *Service {
    if log == nil {
        log = zap.NewNop()
    }
    if bcast == nil {
        bcast = nopBroadcaster{}
    }
    return &Service{
        db:    db,
        cfg:   cfg.withDefaults(),
        log:   log,
        bcast: bcast,
        now:   time.Now,
    }
}

func (s *Service) otpValidity() time.Duration {
    return time.Duration(s.cfg.OTPValiditySeconds) * time.Second
}

// IsOTPValid reports whether the session's current code is still inside the
// validity window. The boundary is inclusive: a submission at exactly the
// window edge is accepted.
func (s *Service) IsOTPValid(session *models.Session) bool {
    if session.OTPIssuedAt == nil {
        return false
    }
    return s.now().Sub(*session.OTPIssuedAt) <= s.otpValidity()
}

type OpenRequest struct {
    TeacherID        uint
    PeriodID         uint
    SubjectID        uint
    Date             string // YYYY-MM-DD, empty means today
    Mode             models.SessionMode
    TeacherLatitude  *float64
    TeacherLongitude *float64
    ProximityRadiusM int
}

type OpenResult struct {
    Session          models.Session
    OTP              string
    ExpiresInSeconds int
    EnrolledCount    int
    StudentEmails    []string
}

// Open starts a new attendance session and seeds one ledger row per enrolled
// student. A still-active session for the same (period, date) is returned as
// a conflict carrying its id and code rather than duplicated.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*OpenResult, error) {
    if req.PeriodID == 0 && req.SubjectID == 0 {
        return nil, invalid("either period_id or subject_id is required")
    }
    date := req.Date
    if date == "" {
        date = s.now().Format("2006-01-02")
    }
    mode := req.Mode
    if mode == "" {
        mode = models.ModeOnsite
    }
    if !mode.Valid() {
        return nil, invalid("mode must be onsite or remote")
    }

    period, subject, err := s.resolvePeriod(ctx, req.PeriodID, req.SubjectID)
    if err != nil {
        return nil, err
    }
    if subject.TeacherIDRef != req.TeacherID {
        return nil, forbidden("you do not teach this subject")
    }

    var class models.Class
    if err := s.db.WithContext(ctx).First(&class, subject.ClassIDRef).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, notFound("class not found")
        }
        return nil, s.internal("open: load class", err)
    }
    if !class.IsActive {
        return nil, invalid("cannot take attendance, semester has been marked as complete")
    }

    var active models.Session
    err = s.db.WithContext(ctx).
        Where("period_id_ref = ? AND date = ? AND is_active = ?", period.ID, date, true).
        First(&active).Error
    if err == nil {
        return nil, activeConflict(&active)
    }
    if !errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, s.internal("open: check active session", err)
    }

    otp, err := utils.GenerateCode(s.cfg.OTPLength)
    if err != nil {
        return nil, s.internal("open: generate otp", err)
    }
    now := s.now().UTC()
    radius := req.ProximityRadiusM
    if radius <= 0 {
        radius = s.cfg.DefaultProximityRadiusM
    }
    session := models.Session{
        PeriodIDRef:      period.ID,
        Date:             date,
        OTP:              &otp,
        OTPIssuedAt:      &now,
        IsActive:         true,
        Mode:             mode,
        ProximityRadiusM: radius,
    }
    if mode == models.ModeOnsite {
        session.TeacherLatitude = req.TeacherLatitude
        session.TeacherLongitude = req.TeacherLongitude
    }

    roster, err := s.classRoster(ctx, class.ID)
    if err != nil {
        return nil, s.internal("open: load roster", err)
    }

    err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        if err := tx.Create(&session).Error; err != nil {
            return err
        }
        if len(roster) == 0 {
            return nil
        }
        rows := make([]models.Attendance, 0, len(roster))
        for _, student := range roster {
            rows = append(rows, models.Attendance{
                SessionIDRef: session.ID,
                UserIDRef:    student.ID,
                Status:       models.StatusAbsent,
            })
        }
        return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 200).Error
    })
    if err != nil {
        // The partial unique index on active (period, date) catches the
        // window between the pre-check and the insert: a concurrent open
        // that committed first wins, and the caller gets its session back.
        if isDuplicateKey(err) {
            var winner models.Session
            lookupErr := s.db.WithContext(ctx).
                Where("period_id_ref = ? AND date = ? AND is_active = ?", period.ID, date, true).
                First(&winner).Error
            if lookupErr == nil {
                return nil, activeConflict(&winner)
            }
            return nil, &Error{Kind: KindConflict, Message: "active session already exists for this subject today"}
        }
        return nil, s.internal("open: create session", err)
    }

    metrics.SessionsOpened.Inc()
    s.bcast.AttendanceStarted(session.ID, "Attendance session started")

    emails := make([]string, 0, len(roster))
    for _, student := range roster {
        emails = append(emails, student.Email)
    }
    return &OpenResult{
        Session:          session,
        OTP:              otp,
        ExpiresInSeconds: s.cfg.OTPValiditySeconds,
        EnrolledCount:    len(roster),
        StudentEmails:    emails,
    }, nil
}

type RegenerateResult struct {
    SessionID        uint
    OTP              string
    ExpiresInSeconds int
}

// RegenerateOTP replaces the session's code and issue timestamp in one
// conditional update. Retry counters and existing Present rows are untouched.
func (s *Service) RegenerateOTP(ctx context.Context, teacherID, sessionID uint) (*RegenerateResult, error) {
    if _, _, err := s.sessionOwnedBy(ctx, sessionID, teacherID); err != nil {
        return nil, err
    }
    otp, err := utils.GenerateCode(s.cfg.OTPLength)
    if err != nil {
        return nil, s.internal("regenerate: generate otp", err)
    }
    now := s.now().UTC()
    res := s.db.WithContext(ctx).Model(&models.Session{}).
        Where("id = ? AND is_active = ?", sessionID, true).
        Updates(map[string]interface{}{"otp": otp, "otp_issued_at": now})
    if res.Error != nil {
        return nil, s.internal("regenerate: update session", res.Error)
    }
    if res.RowsAffected == 0 {
        return nil, invalid("session is closed")
    }
    s.bcast.OTPRegenerated(sessionID, "New OTP generated")
    return &RegenerateResult{
        SessionID:        sessionID,
        OTP:              otp,
        ExpiresInSeconds: s.cfg.OTPValiditySeconds,
    }, nil
}

// Close finalizes the ledger and ends the session in one transaction:
// unsubmitted rows become Absent with submitted_at stamped, remaining Proxy
// rows resolve to Absent, and the session flips inactive exactly once. The
// conditional update on is_active makes a racing close or regenerate land in
// a consistent terminal state.
func (s *Service) Close(ctx context.Context, teacherID, sessionID uint) error {
    if _, _, err := s.sessionOwnedBy(ctx, sessionID, teacherID); err != nil {
        return err
    }
    now := s.now().UTC()
    err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        res := tx.Model(&models.Session{}).
            Where("id = ? AND is_active = ?", sessionID, true).
            Updates(map[string]interface{}{"is_active": false, "closed_at": now})
        if res.Error != nil {
            return res.Error
        }
        if res.RowsAffected == 0 {
            return invalid("session already closed")
        }
        if err := tx.Model(&models.Attendance{}).
            Where("session_id_ref = ? AND submitted_at IS NULL", sessionID).
            Updates(map[string]interface{}{"status": models.StatusAbsent, "submitted_at": now}).Error; err != nil {
            return err
        }
        return tx.Model(&models.Attendance{}).
            Where("session_id_ref = ? AND status = ?", sessionID, models.StatusProxy).
            Update("status", models.StatusAbsent).Error
    })
    if err != nil {
        var e *Error
        if errors.As(err, &e) {
            return e
        }
        return s.internal("close: finalize session", err)
    }
    metrics.SessionsClosed.Inc()
    s.bcast.AttendanceClosed(sessionID, "Session closed")
    return nil
}

// ManualMark lets the owning teacher overwrite a ledger row with Present or
// Absent regardless of retry state. submitted_at is stamped only if unset.
func (s *Service) ManualMark(ctx context.Context, teacherID, sessionID uint, studentEmail string, status models.Status) error {
    if status != models.StatusPresent && status != models.StatusAbsent {
        return invalid("status must be P or A")
    }
    if _, _, err := s.sessionOwnedBy(ctx, sessionID, teacherID); err != nil {
        return err
    }
    var student models.User
    err := s.db.WithContext(ctx).
        Where("email = ? AND role = ?", studentEmail, models.RoleSiswa).
        First(&student).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return notFound("student not found")
        }
        return s.internal("manual mark: load student", err)
    }
    var att models.Attendance
    err = s.db.WithContext(ctx).
        Where("session_id_ref = ? AND user_id_ref = ?", sessionID, student.ID).
        First(&att).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return notFound("attendance record not found")
        }
        return s.internal("manual mark: load record", err)
    }
    updates := map[string]interface{}{"status": status}
    if att.SubmittedAt == nil {
        updates["submitted_at"] = s.now().UTC()
    }
    if err := s.db.WithContext(ctx).Model(&models.Attendance{}).
        Where("id = ?", att.ID).
        Updates(updates).Error; err != nil {
        return s.internal("manual mark: update record", err)
    }
    s.bcast.AttendanceUpdate(sessionID, studentEmail, status)
    return nil
}

type SubmissionEntry struct {
    StudentEmail  string        `json:"student_email"`
    StudentName   string        `json:"student_name"`
    RollNo        string        `json:"roll_no"`
    Status        models.Status `json:"status"`
    StatusDisplay string        `json:"status_display"`
    SubmittedAt   *time.Time    `json:"submitted_at"`
}

type LiveStatusResult struct {
    SessionID   uint               `json:"session_id"`
    Total       int                `json:"total_students"`
    Present     int                `json:"present"`
    Absent      int                `json:"absent"`
    Pending     int                `json:"pending"`
    Proxy       int                `json:"proxy"`
    Mode        models.SessionMode `json:"mode"`
    Submissions []SubmissionEntry  `json:"submissions"`
}

// LiveStatus re-derives the aggregate view. While the session is active,
// "pending" means not yet submitted and "absent" counts only rows that were
// explicitly resolved; once closed everything is terminal and pending is zero.
func (s *Service) LiveStatus(ctx context.Context, teacherID, sessionID uint) (*LiveStatusResult, error) {
    session, subject, err := s.sessionOwnedBy(ctx, sessionID, teacherID)
    if err != nil {
        return nil, err
    }
    var atts []models.Attendance
    if err := s.db.WithContext(ctx).
        Where("session_id_ref = ?", sessionID).
        Find(&atts).Error; err != nil {
        return nil, s.internal("live status: load records", err)
    }

    userIDs := make([]uint, 0, len(atts))
    for _, a := range atts {
        userIDs = append(userIDs, a.UserIDRef)
    }
    students := map[uint]models.User{}
    if len(userIDs) > 0 {
        var users []models.User
        if err := s.db.WithContext(ctx).
            Where("id IN ?", userIDs).
            Order("roll_no").
            Find(&users).Error; err != nil {
            return nil, s.internal("live status: load students", err)
        }
        for _, u := range users {
            students[u.ID] = u
        }
    }

    // Roll numbers from supplemental enrollments win over the student default.
    rollOverrides := map[uint]string{}
    var enrollments []models.StudentClass
    if err := s.db.WithContext(ctx).
        Where("class_id_ref = ?", subject.ClassIDRef).
        Find(&enrollments).Error; err != nil {
        return nil, s.internal("live status: load enrollments", err)
    }
    for _, e := range enrollments {
        if e.RollNo != "" {
            rollOverrides[e.UserIDRef] = e.RollNo
        }
    }

    out := &LiveStatusResult{
        SessionID:   sessionID,
        Total:       len(atts),
        Mode:        session.Mode,
        Submissions: make([]SubmissionEntry, 0, len(atts)),
    }
    for _, a := range atts {
        switch {
        case a.Status == models.StatusPresent:
            out.Present++
        case a.Status == models.StatusProxy:
            out.Proxy++
        case session.IsActive && a.SubmittedAt == nil:
            out.Pending++
        case a.Status == models.StatusAbsent:
            out.Absent++
        }
        student := students[a.UserIDRef]
        roll := student.RollNo
        if override, ok := rollOverrides[a.UserIDRef]; ok {
            roll = override
        }
        out.Submissions = append(out.Submissions, SubmissionEntry{
            StudentEmail:  student.Email,
            StudentName:   student.FullName,
            RollNo:        roll,
            Status:        a.Status,
            StatusDisplay: a.Status.Display(),
            SubmittedAt:   a.SubmittedAt,
        })
    }
    // Effective roll order, not insert order: overrides from supplemental
    // enrollments must sort where their roll puts them.
    sort.Slice(out.Submissions, func(i, j int) bool {
        a, b := out.Submissions[i], out.Submissions[j]
        if a.RollNo != b.RollNo {
            return a.RollNo < b.RollNo
        }
        return a.StudentEmail < b.StudentEmail
    })
    return out, nil
}

// ListSessions returns the session history for one of the teacher's
// subjects, newest first.
func (s *Service) ListSessions(ctx context.Context, teacherID, subjectID uint) ([]models.Session, error) {
    var subject models.Subject
    if err := s.db.WithContext(ctx).First(&subject, subjectID).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, notFound("subject not found")
        }
        return nil, s.internal("list sessions: load subject", err)
    }
    if subject.TeacherIDRef != teacherID {
        return nil, forbidden("you do not teach this subject")
    }
    periodIDs := s.db.Model(&models.Period{}).Select("id").Where("subject_id_ref = ?", subjectID)
    var sessions []models.Session
    if err := s.db.WithContext(ctx).
        Where("period_id_ref IN (?)", periodIDs).
        Order("date DESC, id DESC").
        Find(&sessions).Error; err != nil {
        return nil, s.internal("list sessions: load sessions", err)
    }
    return sessions, nil
}

// resolvePeriod loads the period either directly or via the subject's slot
// for today, creating an ad-hoc slot when the timetable has none.
func (s *Service) resolvePeriod(ctx context.Context, periodID, subjectID uint) (*models.Period, *models.Subject, error) {
    var period models.Period
    var subject models.Subject
    if periodID != 0 {
        if err := s.db.WithContext(ctx).First(&period, periodID).Error; err != nil {
            if errors.Is(err, gorm.ErrRecordNotFound) {
                return nil, nil, notFound("period not found")
            }
            return nil, nil, s.internal("resolve period", err)
        }
        if err := s.db.WithContext(ctx).First(&subject, period.SubjectIDRef).Error; err != nil {
            if errors.Is(err, gorm.ErrRecordNotFound) {
                return nil, nil, notFound("subject not found")
            }
            return nil, nil, s.internal("resolve period subject", err)
        }
        return &period, &subject, nil
    }

    if err := s.db.WithContext(ctx).First(&subject, subjectID).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, nil, notFound("subject not found")
        }
        return nil, nil, s.internal("resolve subject", err)
    }
    weekday := int(s.now().Weekday())
    err := s.db.WithContext(ctx).
        Where("subject_id_ref = ? AND day_of_week = ?", subject.ID, weekday).
        Order("period_no").
        First(&period).Error
    if err == nil {
        return &period, &subject, nil
    }
    if !errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, nil, s.internal("resolve subject period", err)
    }

    // No timetable slot today: create an ad-hoc period after the class's
    // last slot of the day.
    classSubjects := s.db.Model(&models.Subject{}).Select("id").Where("class_id_ref = ?", subject.ClassIDRef)
    var maxNo int
    if err := s.db.WithContext(ctx).Model(&models.Period{}).
        Where("day_of_week = ? AND subject_id_ref IN (?)", weekday, classSubjects).
        Select("COALESCE(MAX(period_no), 0)").
        Scan(&maxNo).Error; err != nil {
        return nil, nil, s.internal("resolve max period", err)
    }
    period = models.Period{
        SubjectIDRef: subject.ID,
        DayOfWeek:    weekday,
        PeriodNo:     maxNo + 1,
    }
    if err := s.db.WithContext(ctx).Create(&period).Error; err != nil {
        return nil, nil, s.internal("create ad-hoc period", err)
    }
    return &period, &subject, nil
}

// classRoster is the deduplicated union of verified siswa whose primary
// class matches and those enrolled via StudentClass.
func (s *Service) classRoster(ctx context.Context, classID uint) ([]models.User, error) {
    enrolled := s.db.Model(&models.StudentClass{}).Select("user_id_ref").Where("class_id_ref = ?", classID)
    var students []models.User
    err := s.db.WithContext(ctx).
        Where("role = ? AND verified = ?", models.RoleSiswa, true).
        Where("class_id_ref = ? OR id IN (?)", classID, enrolled).
        Order("roll_no").
        Find(&students).Error
    return students, err
}

func (s *Service) sessionOwnedBy(ctx context.Context, sessionID, teacherID uint) (*models.Session, *models.Subject, error) {
    var session models.Session
    if err := s.db.WithContext(ctx).First(&session, sessionID).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, nil, notFound("session not found")
        }
        return nil, nil, s.internal("load session", err)
    }
    var period models.Period
    if err := s.db.WithContext(ctx).First(&period, session.PeriodIDRef).Error; err != nil {
        return nil, nil, s.internal("load session period", err)
    }
    var subject models.Subject
    if err := s.db.WithContext(ctx).First(&subject, period.SubjectIDRef).Error; err != nil {
        return nil, nil, s.internal("load session subject", err)
    }
    if subject.TeacherIDRef != teacherID {
        return nil, nil, forbidden("unauthorized")
    }
    return &session, &subject, nil
}

func activeConflict(active *models.Session) *Error {
    conflict := &Error{
        Kind:      KindConflict,
        Message:   "active session already exists for this subject today",
        SessionID: active.ID,
    }
    if active.OTP != nil {
        conflict.OTP = *active.OTP
    }
    return conflict
}

func isDuplicateKey(err error) bool {
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && pgErr.Code == "23505" {
        return true
    }
    return errors.Is(err, gorm.ErrDuplicatedKey) ||
        strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// internal logs the datastore failure with context and returns the generic
// taxonomy error so nothing leaks to callers.
func (s *Service) internal(op string, err error) *Error {
    s.log.Error("attendance service failure", zap.String("op", op), zap.Error(err))
    return unexpected("internal error")
}
