package http

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/domain/supervisor"
	"github.com/opsdeck/appman/internal/infrastructure/monitoring"
	"github.com/opsdeck/appman/internal/shared/id"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// streamPollInterval is how often the stream checks the file for growth.
const streamPollInterval = time.Second

// StreamHandler manages WebSocket log streaming connections.
type StreamHandler struct {
	super   *supervisor.Supervisor
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewStreamHandler creates a WebSocket log streaming handler.
func NewStreamHandler(super *supervisor.Supervisor, metrics *monitoring.Metrics, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		super:   super,
		metrics: metrics,
		logger:  logger,
	}
}

// streamMessage is the wire format sent to stream subscribers.
type streamMessage struct {
	Type     string      `json:"type"`
	StreamID id.StreamID `json:"stream_id,omitempty"`
	App      string      `json:"app,omitempty"`
	Channel  string      `json:"channel,omitempty"`
	Line     string      `json:"line,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// HandleConnection upgrades the request and follows the app's log file,
// sending a recent-history snapshot first and appended lines as they land.
// Resolution errors are reported over plain HTTP before the upgrade.
func (h *StreamHandler) HandleConnection(c *gin.Context) {
	name := c.Param("name")
	channel := registry.Channel(c.DefaultQuery("channel", string(registry.ChannelBackend)))
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log channel: " + string(channel)})
		return
	}

	app, err := h.super.Registry().Resolve(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	path, err := h.super.LogPath(app, channel)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncStreamConnections()
		defer h.metrics.DecStreamConnections()
	}

	sid := id.NewStreamID()
	h.sendJSON(conn, streamMessage{
		Type:     "system",
		StreamID: sid,
		App:      app.Name,
		Channel:  string(channel),
	})

	// Recent history first so the subscriber has context before live lines.
	history, err := h.super.Logs(c.Request.Context(), app.Name, channel, 0)
	if err != nil {
		h.sendJSON(conn, streamMessage{Type: "error", Error: err.Error()})
		return
	}
	for _, line := range history {
		if !h.sendJSON(conn, streamMessage{Type: "log", Line: line}) {
			return
		}
	}

	// Drain the read side so client close and ping frames are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.follow(conn, path, closed, sid)
}

// follow polls the file and sends appended lines. A shrinking file means
// rotation or truncation, so the offset resets to the start.
func (h *StreamHandler) follow(conn *websocket.Conn, path string, closed <-chan struct{}, sid id.StreamID) {
	offset := int64(0)
	if fi, err := os.Stat(path); err == nil {
		offset = fi.Size()
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var carry []byte
	for {
		select {
		case <-closed:
			h.logger.Debug("Log stream closed by client", zap.String("stream_id", string(sid)))
			return
		case <-ticker.C:
		}

		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if fi.Size() < offset {
			offset = 0
			carry = nil
		}
		if fi.Size() == offset {
			continue
		}

		chunk, err := readFrom(path, offset)
		if err != nil {
			h.logger.Warn("Log stream read failed",
				zap.String("stream_id", string(sid)), zap.Error(err))
			continue
		}
		offset += int64(len(chunk))

		data := append(carry, chunk...)
		lines := bytes.Split(data, []byte("\n"))
		// The last element is a partial line until its newline arrives.
		carry = append([]byte(nil), lines[len(lines)-1]...)
		for _, line := range lines[:len(lines)-1] {
			if !h.sendJSON(conn, streamMessage{Type: "log", Line: string(line)}) {
				return
			}
		}
	}
}

func readFrom(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func (h *StreamHandler) sendJSON(conn *websocket.Conn, msg streamMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("Log stream write failed", zap.Error(err))
		return false
	}
	return true
}
