package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connWrapper serializes writes; gorilla connections allow one concurrent
// writer.
type connWrapper struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mutex        sync.Mutex
}

func newConnWrapper(c *websocket.Conn, writeTimeout time.Duration) *connWrapper {
	return &connWrapper{conn: c, writeTimeout: writeTimeout}
}

func (w *connWrapper) write(messageType int, data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(messageType, data)
}

func (w *connWrapper) WriteText(data []byte) error {
	return w.write(websocket.TextMessage, data)
}

func (w *connWrapper) WritePing() error {
	return w.write(websocket.PingMessage, nil)
}

func (w *connWrapper) WriteClose() error {
	return w.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (w *connWrapper) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.Close()
}
