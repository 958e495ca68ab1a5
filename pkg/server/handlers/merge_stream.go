package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lstore-db/lstore/pkg/table"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MergeStreamManager fans out table.Event notifications (one merge
// pass completing) to connected WebSocket clients, replacing a
// document store's oplog-backed change stream with a narrower
// merge-progress feed.
type MergeStreamManager struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]chan table.Event
}

// NewMergeStreamManager creates an empty manager.
func NewMergeStreamManager() *MergeStreamManager {
	return &MergeStreamManager{conns: make(map[*websocket.Conn]chan table.Event)}
}

// Hook returns a callback suitable for table.Table.SetMergeHook that
// broadcasts every completed merge pass to connected clients.
func (m *MergeStreamManager) Hook() func(table.Event) {
	return func(ev table.Event) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, ch := range m.conns {
			select {
			case ch <- ev:
			default: // drop the event for a slow client rather than block the merge worker
			}
		}
	}
}

// ServeHTTP upgrades the connection and streams merge events as JSON
// until the client disconnects.
func (m *MergeStreamManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan table.Event, 16)
	m.mu.Lock()
	m.conns[conn] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		close(ch)
	}()

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Close disconnects every client.
func (m *MergeStreamManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn, ch := range m.conns {
		conn.Close()
		close(ch)
	}
	m.conns = make(map[*websocket.Conn]chan table.Event)
	return nil
}
