package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type SubscribeHandler struct {
	hub      *hub.Hub
	locks    *service.LockService
	upgrader websocket.Upgrader
}

func NewSubscribeHandler(h *hub.Hub, locks *service.LockService) *SubscribeHandler {
	return &SubscribeHandler{
		hub:   h,
		locks: locks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin allowlisting happens in the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe streams lock and flag events for one page. The stream is an
// optimization over polling: when it drops for any reason the client must
// refetch the page snapshot before trusting local state again.
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	documentID := c.Query("document_id")
	pageID := c.Query("page_id")
	if documentID == "" || pageID == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	holder := getHolderID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	topic := hub.Topic{DocumentID: documentID, PageID: pageID}
	sub := h.hub.Subscribe(topic)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("document_id", documentID),
		zap.String("page_id", pageID),
		zap.String("holder", holder))
	logger.Info("subscriber connected")

	// reader goroutine: consume control frames, detect disconnect, then
	// free the caller's locks on this page so a dropped stream does not
	// strand rows. Locks held through other open subscriptions survive.
	go func() {
		defer func() {
			sub.Close()
			_ = conn.Close()
			h.locks.ReleasePage(c.Request.Context(), holder, documentID, pageID)
			logger.Info("subscriber disconnected")
		}()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writeLoop(conn, sub, logger)
}

func (h *SubscribeHandler) writeLoop(conn *websocket.Conn, sub *hub.Subscriber, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// dropped by the hub; tell the client to resync
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "resync required"))
				return
			}
			payload, err := model.EncodeEvent(ev)
			if err != nil {
				logger.Error("encode event failed", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
