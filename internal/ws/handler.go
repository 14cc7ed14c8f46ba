package ws

import (
    "context"
    "encoding/json"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "github.com/zaqqye/absensi_backend_v1/internal/attendance"
    "github.com/zaqqye/absensi_backend_v1/internal/metrics"
    "github.com/zaqqye/absensi_backend_v1/internal/models"
    "github.com/zaqqye/absensi_backend_v1/internal/utils"
)

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
        // Allow all origins; rely on JWT auth.
        return true
    },
}

type inboundMessage struct {
    Type         string               `json:"type"`
    SessionID    utils.FlexibleString `json:"session_id"`
    OTP          string               `json:"otp"`
    StudentEmail string               `json:"student_email"`
    DeviceID     string               `json:"device_id"`
    Latitude     json.RawMessage      `json:"latitude"`
    Longitude    json.RawMessage      `json:"longitude"`
}

// AttendanceHandler upgrades an authenticated connection and speaks the
// attendance protocol: siswa join the student audience and may submit codes,
// guru and admin join the teacher audience and receive live updates.
func AttendanceHandler(hubs *Hubs, svc *attendance.Service, log *zap.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        if hubs == nil {
            c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
            return
        }
        uVal, ok := c.Get("user")
        if !ok {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
            return
        }
        user := uVal.(models.User)

        hub := hubs.Teachers
        if user.Role == models.RoleSiswa {
            hub = hubs.Students
        }

        conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
        if err != nil {
            return
        }
        client := newClient(hub, conn, log)
        ctx := c.Request.Context()
        client.onMessage = func(data []byte) {
            dispatch(ctx, client, user, hubs, svc, data)
        }
        hub.register <- client
        metrics.WSConnections.Inc()
        defer metrics.WSConnections.Dec()

        go client.writePump()
        client.Send(Event{Type: EventConnected, Message: "WebSocket connected"})
        client.readPump()
    }
}

func dispatch(ctx context.Context, client *Client, user models.User, hubs *Hubs, svc *attendance.Service, data []byte) {
    var msg inboundMessage
    if err := json.Unmarshal(data, &msg); err != nil {
        client.Send(Event{Type: "error", Message: "invalid message"})
        return
    }
    switch msg.Type {
    case "ping":
        client.Send(Event{Type: EventPong})
    case "submit_otp":
        sessionID, _ := msg.SessionID.Uint()
        email := msg.StudentEmail
        if email == "" {
            email = user.Email
        }
        lat, badLat := utils.ParseCoord(msg.Latitude)
        lon, badLon := utils.ParseCoord(msg.Longitude)
        outcome := svc.Submit(ctx, attendance.SubmitRequest{
            SessionID:    sessionID,
            OTP:          msg.OTP,
            StudentEmail: email,
            DeviceID:     msg.DeviceID,
            Latitude:     lat,
            Longitude:    lon,
            BadCoords:    badLat || badLon,
        })
        metrics.Submissions.WithLabelValues(outcomeLabel(outcome)).Inc()
        client.Send(outcome)
        // Present writes notify the teacher feed; Proxy rows surface via
        // live status only, and repeats of an already-Present record must
        // not re-broadcast.
        if outcome.Mutated && outcome.Status == models.StatusPresent {
            hubs.AttendanceUpdate(sessionID, outcome.StudentEmail, outcome.Status)
        }
    default:
        client.Send(struct {
            Type string          `json:"type"`
            Data json.RawMessage `json:"data"`
        }{Type: EventEcho, Data: data})
    }
}

func outcomeLabel(o attendance.Outcome) string {
    switch {
    case o.Blocked:
        return "blocked"
    case o.Success && o.Status == models.StatusProxy:
        return "proxy"
    case o.Success:
        return "present"
    default:
        return "rejected"
    }
}
