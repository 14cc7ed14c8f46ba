package ws

// Server-to-client event types.
const (
    EventConnected         = "connected"
    EventPong              = "pong"
    EventEcho              = "echo"
    EventAttendanceStarted = "attendance_started"
    EventAttendanceUpdate  = "attendance_update"
    EventAttendanceClosed  = "attendance_closed"
    EventOTPRegenerated    = "otp_regenerated"
)

type Event struct {
    Type         string `json:"type"`
    SessionID    uint   `json:"session_id,omitempty"`
    StudentEmail string `json:"student_email,omitempty"`
    Status       string `json:"status,omitempty"`
    Message      string `json:"message,omitempty"`
}
