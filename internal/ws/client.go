package ws

import (
    "encoding/json"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"
)

type Client struct {
    hub       *Hub
    conn      *websocket.Conn
    send      chan []byte
    onMessage func(data []byte)
    log       *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, log *zap.Logger) *Client {
    return &Client{
        hub:  hub,
        conn: conn,
        send: make(chan []byte, sendBufferSize),
        log:  log,
    }
}

func (c *Client) closeConn() {
    if c.conn != nil {
        c.conn.Close()
    }
}

// Send marshals v and enqueues it for this client only. Full buffers drop
// the message; direct replies share the broadcast path's no-backpressure
// rule.
func (c *Client) Send(v interface{}) {
    data, err := json.Marshal(v)
    if err != nil {
        c.log.Error("ws: marshal reply", zap.Error(err))
        return
    }
    select {
    case c.send <- data:
    default:
        c.log.Warn("ws: client send buffer full, dropping reply")
    }
}

func (c *Client) readPump() {
    defer func() {
        c.hub.unregister <- c
    }()
    c.conn.SetReadLimit(maxMessageSize)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        msgType, data, err := c.conn.ReadMessage()
        if err != nil {
            break
        }
        if msgType == websocket.TextMessage && c.onMessage != nil {
            c.onMessage(data)
        }
    }
}

func (c *Client) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        c.conn.Close()
    }()
    for {
        select {
        case msg, ok := <-c.send:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                c.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }
            w, err := c.conn.NextWriter(websocket.TextMessage)
            if err != nil {
                return
            }
            if _, err := w.Write(msg); err != nil {
                return
            }
            if err := w.Close(); err != nil {
                return
            }
        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}
