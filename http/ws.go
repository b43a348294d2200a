package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"irislab/pipeline"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsError WebSocket错误消息
type wsError struct {
	Error string `json:"error"`
}

// RegisterWebSocketHandlers 注册WebSocket预测接口
func RegisterWebSocketHandlers(mux *http.ServeMux, app *App) {
	mux.HandleFunc("GET /api/ws/predict", app.handleWSPredict)
}

// handleWSPredict 每条消息 {"features":[...]} 返回一次预测或 {"error":...}
func (a *App) handleWSPredict(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	requestID := GetRequestID(r.Context())
	logger := a.logger().With(zap.String("request_id", requestID))
	logger.Debug("websocket client connected")

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	ctx := pipeline.WithSource(r.Context(), "ws")
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var reply interface{}
		var req PredictRequest
		if err := json.Unmarshal(message, &req); err != nil {
			reply = wsError{Error: "invalid JSON message"}
		} else if pred, err := a.Predictor.Predict(ctx, req.Features); err != nil {
			reply = wsError{Error: err.Error()}
		} else {
			reply = newPredictResponse(pred)
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
