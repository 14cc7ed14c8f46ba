package attendance

import (
    "context"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "gorm.io/driver/sqlite"
    "gorm.io/gorm"

    "github.com/zaqqye/absensi_backend_v1/internal/models"
)

type updateEvent struct {
    sessionID uint
    email     string
    status    models.Status
}

type recordingBroadcaster struct {
    mu          sync.Mutex
    started     []uint
    closed      []uint
    regenerated []uint
    updates     []updateEvent
}

func (r *recordingBroadcaster) AttendanceStarted(id uint, _ string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.started = append(r.started, id)
}

func (r *recordingBroadcaster) AttendanceUpdate(id uint, email string, status models.Status) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.updates = append(r.updates, updateEvent{sessionID: id, email: email, status: status})
}

func (r *recordingBroadcaster) AttendanceClosed(id uint, _ string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.closed = append(r.closed, id)
}

func (r *recordingBroadcaster) OTPRegenerated(id uint, _ string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.regenerated = append(r.regenerated, id)
}

type testEnv struct {
    db    *gorm.DB
    svc   *Service
    bcast *recordingBroadcaster
    clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
    require.NoError(t, err)
    sqlDB, err := db.DB()
    require.NoError(t, err)
    sqlDB.SetMaxOpenConns(1)
    require.NoError(t, db.AutoMigrate(
        &models.User{}, &models.Class{}, &models.StudentClass{},
        &models.Subject{}, &models.Period{},
        &models.Session{}, &models.Attendance{}, &models.Device{},
    ))
    bcast := &recordingBroadcaster{}
    env := &testEnv{
        db:    db,
        bcast: bcast,
        clock: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC), // a Monday
    }
    env.svc = NewService(db, Config{}, zap.NewNop(), bcast)
    env.svc.now = func() time.Time { return env.clock }
    return env
}

func (e *testEnv) advance(d time.Duration) {
    e.clock = e.clock.Add(d)
}

type fixture struct {
    teacher  models.User
    class    models.Class
    subject  models.Subject
    period   models.Period
    students []models.User
}

func (e *testEnv) seedClass(t *testing.T, numStudents int) *fixture {
    t.Helper()
    f := &fixture{}

    f.teacher = models.User{
        UserID: "t-1", FullName: "Guru Satu", Email: "guru@example.com",
        Role: models.RoleGuru, Verified: true, Active: true,
    }
    require.NoError(t, e.db.Create(&f.teacher).Error)

    f.class = models.Class{Name: "X-IPA-1", IsActive: true}
    require.NoError(t, e.db.Create(&f.class).Error)

    f.subject = models.Subject{Name: "Matematika", ClassIDRef: f.class.ID, TeacherIDRef: f.teacher.ID}
    require.NoError(t, e.db.Create(&f.subject).Error)

    f.period = models.Period{
        SubjectIDRef: f.subject.ID,
        DayOfWeek:    int(e.clock.Weekday()),
        PeriodNo:     1,
    }
    require.NoError(t, e.db.Create(&f.period).Error)

    for i := 1; i <= numStudents; i++ {
        s := models.User{
            UserID:     fmt.Sprintf("s-%d", i),
            FullName:   fmt.Sprintf("Siswa %d", i),
            Email:      fmt.Sprintf("siswa%d@example.com", i),
            Role:       models.RoleSiswa,
            RollNo:     fmt.Sprintf("%02d", i),
            ClassIDRef: &f.class.ID,
            Verified:   true,
            Active:     true,
        }
        require.NoError(t, e.db.Create(&s).Error)
        f.students = append(f.students, s)
    }
    return f
}

func f64(v float64) *float64 { return &v }

func (e *testEnv) openOnsite(t *testing.T, f *fixture) *OpenResult {
    t.Helper()
    res, err := e.svc.Open(context.Background(), OpenRequest{
        TeacherID:        f.teacher.ID,
        PeriodID:         f.period.ID,
        Mode:             models.ModeOnsite,
        TeacherLatitude:  f64(12.97),
        TeacherLongitude: f64(77.59),
    })
    require.NoError(t, err)
    return res
}

func TestOpenSeedsLedger(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 3)

    res := env.openOnsite(t, f)

    assert.Len(t, res.OTP, 4)
    assert.Equal(t, 30, res.ExpiresInSeconds)
    assert.Equal(t, 3, res.EnrolledCount)
    assert.True(t, res.Session.IsActive)
    assert.Equal(t, 30, res.Session.ProximityRadiusM)

    var rows []models.Attendance
    require.NoError(t, env.db.Where("session_id_ref = ?", res.Session.ID).Find(&rows).Error)
    require.Len(t, rows, 3)
    for _, row := range rows {
        assert.Equal(t, models.StatusAbsent, row.Status)
        assert.Nil(t, row.SubmittedAt)
        assert.Zero(t, row.RetryCount)
    }
    assert.Equal(t, []uint{res.Session.ID}, env.bcast.started)
}

func TestOpenRosterIncludesSupplementalEnrollments(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 2)

    // A verified siswa whose primary class is elsewhere, enrolled via
    // StudentClass.
    other := models.Class{Name: "X-IPS-2", IsActive: true}
    require.NoError(t, env.db.Create(&other).Error)
    extra := models.User{
        UserID: "s-x", FullName: "Siswa Pindahan", Email: "pindahan@example.com",
        Role: models.RoleSiswa, RollNo: "31", ClassIDRef: &other.ID,
        Verified: true, Active: true,
    }
    require.NoError(t, env.db.Create(&extra).Error)
    require.NoError(t, env.db.Create(&models.StudentClass{
        ClassIDRef: f.class.ID, UserIDRef: extra.ID, RollNo: "31",
    }).Error)

    // Unverified siswa in the class must not be seeded.
    unverified := models.User{
        UserID: "s-u", FullName: "Belum Verif", Email: "belum@example.com",
        Role: models.RoleSiswa, ClassIDRef: &f.class.ID, Verified: false, Active: true,
    }
    require.NoError(t, env.db.Create(&unverified).Error)

    res := env.openOnsite(t, f)
    assert.Equal(t, 3, res.EnrolledCount)
    assert.Contains(t, res.StudentEmails, "pindahan@example.com")
    assert.NotContains(t, res.StudentEmails, "belum@example.com")
}

func TestOpenBySubjectCreatesAdHocPeriod(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)

    bare := models.Subject{Name: "Fisika", ClassIDRef: f.class.ID, TeacherIDRef: f.teacher.ID}
    require.NoError(t, env.db.Create(&bare).Error)

    res, err := env.svc.Open(context.Background(), OpenRequest{
        TeacherID: f.teacher.ID,
        SubjectID: bare.ID,
        Mode:      models.ModeRemote,
    })
    require.NoError(t, err)

    var period models.Period
    require.NoError(t, env.db.First(&period, res.Session.PeriodIDRef).Error)
    assert.Equal(t, bare.ID, period.SubjectIDRef)
    assert.Equal(t, int(env.clock.Weekday()), period.DayOfWeek)
    // Slot lands after the class's existing slot for the day.
    assert.Equal(t, 2, period.PeriodNo)
}

func TestOpenDuplicateActiveReturnsConflict(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)

    first := env.openOnsite(t, f)

    _, err := env.svc.Open(context.Background(), OpenRequest{
        TeacherID: f.teacher.ID,
        PeriodID:  f.period.ID,
    })
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindConflict, e.Kind)
    assert.Equal(t, first.Session.ID, e.SessionID)
    assert.Equal(t, first.OTP, e.OTP)

    // Still exactly one session row.
    var count int64
    require.NoError(t, env.db.Model(&models.Session{}).Count(&count).Error)
    assert.EqualValues(t, 1, count)
}

func TestOpenCompletedClassRejected(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    require.NoError(t, env.db.Model(&models.Class{}).
        Where("id = ?", f.class.ID).
        Updates(map[string]interface{}{"is_active": false, "completed_at": env.clock}).Error)

    _, err := env.svc.Open(context.Background(), OpenRequest{
        TeacherID: f.teacher.ID,
        PeriodID:  f.period.ID,
    })
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindInvalid, e.Kind)
    assert.Contains(t, e.Message, "complete")
}

func TestOpenWrongTeacherForbidden(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    intruder := models.User{
        UserID: "t-2", Email: "lain@example.com", Role: models.RoleGuru,
        Verified: true, Active: true,
    }
    require.NoError(t, env.db.Create(&intruder).Error)

    _, err := env.svc.Open(context.Background(), OpenRequest{
        TeacherID: intruder.ID,
        PeriodID:  f.period.ID,
    })
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindForbidden, e.Kind)
}

func TestRegenerateOTPResetsWindow(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    res := env.openOnsite(t, f)

    env.advance(45 * time.Second)
    var stale models.Session
    require.NoError(t, env.db.First(&stale, res.Session.ID).Error)
    assert.False(t, env.svc.IsOTPValid(&stale))

    regen, err := env.svc.RegenerateOTP(context.Background(), f.teacher.ID, res.Session.ID)
    require.NoError(t, err)
    assert.Len(t, regen.OTP, 4)

    var fresh models.Session
    require.NoError(t, env.db.First(&fresh, res.Session.ID).Error)
    require.NotNil(t, fresh.OTP)
    assert.Equal(t, regen.OTP, *fresh.OTP)
    assert.True(t, env.svc.IsOTPValid(&fresh))
    assert.Equal(t, []uint{res.Session.ID}, env.bcast.regenerated)
}

func TestRegenerateClosedSessionRejected(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    res := env.openOnsite(t, f)
    require.NoError(t, env.svc.Close(context.Background(), f.teacher.ID, res.Session.ID))

    _, err := env.svc.RegenerateOTP(context.Background(), f.teacher.ID, res.Session.ID)
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindInvalid, e.Kind)
}

func TestCloseFinalizesLedger(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 3)
    res := env.openOnsite(t, f)

    // One Present inside the fence, one Proxy outside, one untouched.
    out := env.svc.Submit(context.Background(), SubmitRequest{
        SessionID: res.Session.ID, OTP: res.OTP,
        StudentEmail: f.students[0].Email,
        Latitude:     f64(12.97), Longitude: f64(77.59),
    })
    require.True(t, out.Success)
    out = env.svc.Submit(context.Background(), SubmitRequest{
        SessionID: res.Session.ID, OTP: res.OTP,
        StudentEmail: f.students[1].Email,
        Latitude:     f64(12.9745), Longitude: f64(77.59),
    })
    require.Equal(t, models.StatusProxy, out.Status)

    env.advance(2 * time.Minute)
    require.NoError(t, env.svc.Close(context.Background(), f.teacher.ID, res.Session.ID))

    var session models.Session
    require.NoError(t, env.db.First(&session, res.Session.ID).Error)
    assert.False(t, session.IsActive)
    require.NotNil(t, session.ClosedAt)

    statusFor := func(u models.User) models.Attendance {
        var row models.Attendance
        require.NoError(t, env.db.
            Where("session_id_ref = ? AND user_id_ref = ?", res.Session.ID, u.ID).
            First(&row).Error)
        return row
    }
    assert.Equal(t, models.StatusPresent, statusFor(f.students[0]).Status)
    assert.Equal(t, models.StatusAbsent, statusFor(f.students[1]).Status) // proxy resolved
    untouched := statusFor(f.students[2])
    assert.Equal(t, models.StatusAbsent, untouched.Status)
    require.NotNil(t, untouched.SubmittedAt)

    assert.Equal(t, []uint{res.Session.ID}, env.bcast.closed)

    err := env.svc.Close(context.Background(), f.teacher.ID, res.Session.ID)
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindInvalid, e.Kind)
}

func TestManualMarkOverridesLedger(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    res := env.openOnsite(t, f)
    student := f.students[0]

    // Burn the retry budget so manual marking is the only way out.
    for i := 0; i < 3; i++ {
        out := env.svc.Submit(context.Background(), SubmitRequest{
            SessionID: res.Session.ID, OTP: "WRONG", StudentEmail: student.Email,
        })
        if i == 2 {
            require.True(t, out.Blocked)
        }
    }

    require.NoError(t, env.svc.ManualMark(context.Background(), f.teacher.ID, res.Session.ID, student.Email, models.StatusPresent))

    var row models.Attendance
    require.NoError(t, env.db.
        Where("session_id_ref = ? AND user_id_ref = ?", res.Session.ID, student.ID).
        First(&row).Error)
    assert.Equal(t, models.StatusPresent, row.Status)
    require.NotNil(t, row.SubmittedAt)

    require.Len(t, env.bcast.updates, 1)
    assert.Equal(t, student.Email, env.bcast.updates[0].email)
    assert.Equal(t, models.StatusPresent, env.bcast.updates[0].status)

    err := env.svc.ManualMark(context.Background(), f.teacher.ID, res.Session.ID, student.Email, models.StatusRetry)
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindInvalid, e.Kind)

    err = env.svc.ManualMark(context.Background(), f.teacher.ID, res.Session.ID, "ghost@example.com", models.StatusAbsent)
    require.Error(t, err)
    e = AsError(err)
    assert.Equal(t, KindNotFound, e.Kind)
}

func TestLiveStatusCounts(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 3)
    res := env.openOnsite(t, f)

    env.svc.Submit(context.Background(), SubmitRequest{
        SessionID: res.Session.ID, OTP: res.OTP,
        StudentEmail: f.students[0].Email,
        Latitude:     f64(12.97), Longitude: f64(77.59),
    })
    env.svc.Submit(context.Background(), SubmitRequest{
        SessionID: res.Session.ID, OTP: res.OTP,
        StudentEmail: f.students[1].Email,
    })

    live, err := env.svc.LiveStatus(context.Background(), f.teacher.ID, res.Session.ID)
    require.NoError(t, err)
    assert.Equal(t, 3, live.Total)
    assert.Equal(t, 1, live.Present)
    assert.Equal(t, 1, live.Proxy)
    assert.Equal(t, 1, live.Pending)
    assert.Equal(t, 0, live.Absent)

    require.NoError(t, env.svc.Close(context.Background(), f.teacher.ID, res.Session.ID))

    live, err = env.svc.LiveStatus(context.Background(), f.teacher.ID, res.Session.ID)
    require.NoError(t, err)
    assert.Equal(t, 1, live.Present)
    assert.Equal(t, 2, live.Absent)
    assert.Equal(t, 0, live.Pending)
    assert.Equal(t, 0, live.Proxy)
}

func TestLiveStatusRollOverride(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    student := f.students[0]
    require.NoError(t, env.db.Create(&models.StudentClass{
        ClassIDRef: f.class.ID, UserIDRef: student.ID, RollNo: "99",
    }).Error)
    res := env.openOnsite(t, f)

    live, err := env.svc.LiveStatus(context.Background(), f.teacher.ID, res.Session.ID)
    require.NoError(t, err)
    require.Len(t, live.Submissions, 1)
    assert.Equal(t, "99", live.Submissions[0].RollNo)
    assert.Equal(t, student.Email, live.Submissions[0].StudentEmail)
}

func TestIsOTPValidBoundaryInclusive(t *testing.T) {
    env := newTestEnv(t)
    issued := env.clock
    session := models.Session{OTPIssuedAt: &issued}

    env.advance(30 * time.Second)
    assert.True(t, env.svc.IsOTPValid(&session), "edge of the window is still valid")

    env.advance(time.Second)
    assert.False(t, env.svc.IsOTPValid(&session))

    assert.False(t, env.svc.IsOTPValid(&models.Session{}), "no issue timestamp means invalid")
}

func TestListSessionsNewestFirst(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)

    first := env.openOnsite(t, f)
    require.NoError(t, env.svc.Close(context.Background(), f.teacher.ID, first.Session.ID))
    second := env.openOnsite(t, f)

    sessions, err := env.svc.ListSessions(context.Background(), f.teacher.ID, f.subject.ID)
    require.NoError(t, err)
    require.Len(t, sessions, 2)
    assert.Equal(t, second.Session.ID, sessions[0].ID)
    assert.Equal(t, first.Session.ID, sessions[1].ID)

    _, err = env.svc.ListSessions(context.Background(), f.teacher.ID+100, f.subject.ID)
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindForbidden, e.Kind)

    _, err = env.svc.ListSessions(context.Background(), f.teacher.ID, 9999)
    require.Error(t, err)
    e = AsError(err)
    assert.Equal(t, KindNotFound, e.Kind)
}

func TestActiveSessionUniquePerPeriodDate(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)
    res := env.openOnsite(t, f)

    dup := models.Session{PeriodIDRef: f.period.ID, Date: res.Session.Date, IsActive: true}
    err := env.db.Create(&dup).Error
    require.Error(t, err, "second active session for the slot must hit the unique index")
    assert.True(t, isDuplicateKey(err))

    // Closed rows never collide; history stays append-only.
    closed := models.Session{PeriodIDRef: f.period.ID, Date: res.Session.Date, IsActive: false}
    require.NoError(t, env.db.Create(&closed).Error)
}

func TestOpenMapsDuplicateKeyToConflict(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 1)

    // Steal the slot between the pre-check and the insert: the first session
    // create on this connection gets a competing active row written ahead of
    // it, the way a concurrent open committing first would.
    stolen := false
    require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("steal_slot", func(tx *gorm.DB) {
        dest, ok := tx.Statement.Dest.(*models.Session)
        if !ok || stolen {
            return
        }
        stolen = true
        err := tx.Session(&gorm.Session{NewDB: true}).Exec(
            "INSERT INTO sessions (period_id_ref, date, is_active) VALUES (?, ?, ?)",
            dest.PeriodIDRef, dest.Date, true,
        ).Error
        require.NoError(t, err)
    }))

    _, err := env.svc.Open(context.Background(), OpenRequest{
        TeacherID: f.teacher.ID,
        PeriodID:  f.period.ID,
    })
    require.Error(t, err)
    e := AsError(err)
    assert.Equal(t, KindConflict, e.Kind)

    var active int64
    require.NoError(t, env.db.Model(&models.Session{}).
        Where("is_active = ?", true).Count(&active).Error)
    assert.LessOrEqual(t, active, int64(1), "never more than one active session per slot")
}

func TestLiveStatusOrderedByEffectiveRoll(t *testing.T) {
    env := newTestEnv(t)
    f := env.seedClass(t, 2) // primary rolls 01 and 02

    other := models.Class{Name: "XII-IPA-3", IsActive: true}
    require.NoError(t, env.db.Create(&other).Error)
    extra := models.User{
        UserID: "s-e", FullName: "Siswa Awal", Email: "awal@example.com",
        Role: models.RoleSiswa, RollNo: "50", ClassIDRef: &other.ID,
        Verified: true, Active: true,
    }
    require.NoError(t, env.db.Create(&extra).Error)
    require.NoError(t, env.db.Create(&models.StudentClass{
        ClassIDRef: f.class.ID, UserIDRef: extra.ID, RollNo: "00",
    }).Error)

    res := env.openOnsite(t, f)
    live, err := env.svc.LiveStatus(context.Background(), f.teacher.ID, res.Session.ID)
    require.NoError(t, err)
    require.Len(t, live.Submissions, 3)

    rolls := make([]string, 0, len(live.Submissions))
    for _, sub := range live.Submissions {
        rolls = append(rolls, sub.RollNo)
    }
    assert.Equal(t, []string{"00", "01", "02"}, rolls)
}
