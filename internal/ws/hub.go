package ws

import (
    "encoding/json"
    "time"

    "go.uber.org/zap"
)

const (
    writeWait      = 10 * time.Second
    pongWait       = 60 * time.Second
    pingPeriod     = (pongWait * 9) / 10
    maxMessageSize = 1024
    sendBufferSize = 256
)

// Hub is one broadcast audience. Delivery is best-effort, at-most-once per
// connected client; a client whose buffer is full gets dropped rather than
// stalling the sender.
type Hub struct {
    name       string
    register   chan *Client
    unregister chan *Client
    broadcast  chan []byte
    clients    map[*Client]struct{}
    log        *zap.Logger
}

func NewHub(name string, log *zap.Logger) *Hub {
    if log == nil {
        log = zap.NewNop()
    }
    return &Hub{
        name:       name,
        register:   make(chan *Client),
        unregister: make(chan *Client),
        broadcast:  make(chan []byte, 256),
        clients:    map[*Client]struct{}{},
        log:        log,
    }
}

func (h *Hub) Run() {
    for {
        select {
        case client := <-h.register:
            h.clients[client] = struct{}{}
        case client := <-h.unregister:
            if _, ok := h.clients[client]; ok {
                delete(h.clients, client)
                close(client.send)
                client.closeConn()
            }
        case payload := <-h.broadcast:
            for client := range h.clients {
                select {
                case client.send <- payload:
                default:
                    delete(h.clients, client)
                    close(client.send)
                    client.closeConn()
                }
            }
        }
    }
}

// Broadcast marshals the event and fans it out without blocking the caller.
func (h *Hub) Broadcast(event Event) {
    if h == nil {
        return
    }
    data, err := json.Marshal(event)
    if err != nil {
        h.log.Error("ws: marshal broadcast", zap.String("hub", h.name), zap.Error(err))
        return
    }
    select {
    case h.broadcast <- data:
    default:
        h.log.Warn("ws: broadcast queue full, dropping event",
            zap.String("hub", h.name), zap.String("event", event.Type))
    }
}
