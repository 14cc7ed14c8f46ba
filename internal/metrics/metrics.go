package metrics

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    SessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "absensi", Name: "sessions_opened_total", Help: "Attendance sessions opened",
    })
    SessionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "absensi", Name: "sessions_closed_total", Help: "Attendance sessions closed",
    })
    Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "absensi", Name: "otp_submissions_total", Help: "OTP submissions by outcome",
    }, []string{"outcome"})
    WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "absensi", Name: "ws_connections", Help: "Open realtime connections",
    })
)

func init() {
    prometheus.MustRegister(SessionsOpened, SessionsClosed, Submissions, WSConnections)
}

func Handler() http.Handler { return promhttp.Handler() }
