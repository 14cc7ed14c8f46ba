package ws

import (
    "go.uber.org/zap"

    "github.com/zaqqye/absensi_backend_v1/internal/models"
)

// Hubs groups the two broadcast audiences: every connected siswa, and every
// connected guru/admin dashboard. Scoping is deliberately global; event
// payloads carry the session id so clients filter for themselves.
type Hubs struct {
    Students *Hub
    Teachers *Hub
}

func NewHubs(log *zap.Logger) *Hubs {
    return &Hubs{
        Students: NewHub("students", log),
        Teachers: NewHub("teachers", log),
    }
}

func (h *Hubs) Run() {
    go h.Students.Run()
    go h.Teachers.Run()
}

func (h *Hubs) AttendanceStarted(sessionID uint, message string) {
    h.Students.Broadcast(Event{Type: EventAttendanceStarted, SessionID: sessionID, Message: message})
}

func (h *Hubs) AttendanceUpdate(sessionID uint, studentEmail string, status models.Status) {
    h.Teachers.Broadcast(Event{
        Type:         EventAttendanceUpdate,
        SessionID:    sessionID,
        StudentEmail: studentEmail,
        Status:       string(status),
    })
}

func (h *Hubs) AttendanceClosed(sessionID uint, message string) {
    h.Students.Broadcast(Event{Type: EventAttendanceClosed, SessionID: sessionID, Message: message})
}

func (h *Hubs) OTPRegenerated(sessionID uint, message string) {
    h.Students.Broadcast(Event{Type: EventOTPRegenerated, SessionID: sessionID, Message: message})
}
