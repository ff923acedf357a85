// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/service"
	"unilog-service/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHandler streams device events to WebSocket clients
type WebSocketHandler struct {
	upgrader           websocket.Upgrader
	connections        *ConnectionManager
	deviceService      *service.DeviceService
	acquisitionService *service.AcquisitionService
	eventBus           *EventBus
	sendBuffer         int
	logger             *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	deviceService *service.DeviceService,
	acquisitionService *service.AcquisitionService,
	eventBus *EventBus,
	allowedOrigins []string,
	sendBuffer int,
	logger *zap.Logger,
) *WebSocketHandler {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return &WebSocketHandler{
		upgrader:           upgrader,
		connections:        NewConnectionManager(),
		deviceService:      deviceService,
		acquisitionService: acquisitionService,
		eventBus:           eventBus,
		sendBuffer:         sendBuffer,
		logger:             utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Run forwards bus events to the connected clients until ctx is done
func (h *WebSocketHandler) Run(ctx context.Context) {
	events := h.eventBus.Subscribe("websocket", h.sendBuffer*4)
	defer h.eventBus.Unsubscribe("websocket")

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastDeviceEvent(event)
		case <-ctx.Done():
			return
		}
	}
}

// HandleDeviceConnection follows one logger
// @Summary Live device stream
// @Description WebSocket streaming sample, session_finalized, session_aborted and config_warning messages of one logger
// @Tags WebSocket
// @Param id path string true "Device ID"
// @Router /ws/devices/{id} [get]
func (h *WebSocketHandler) HandleDeviceConnection(c *gin.Context) {
	deviceID := c.Param("id")
	device, err := h.deviceService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, "Device not found", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := h.newClient(c, conn, "device")
	client.DeviceID = &device.DeviceID
	client.DeviceKey = device.ID

	h.connections.Register(client)
	h.logger.Info("Device WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("device_id", deviceID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendInitialDeviceStatus(client, device)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleEventConnection receives the events of every logger
// @Summary Event stream
// @Description WebSocket streaming the events of all loggers
// @Tags WebSocket
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := h.newClient(c, conn, "events")
	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) newClient(c *gin.Context, conn *websocket.Conn, clientType string) *Client {
	return &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, h.sendBuffer),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		if topic := stringField(message.Data, "topic"); topic != "" {
			client.Subscribe(topic)
			h.sendMessage(client, &WebSocketMessage{
				Type:      "subscription_confirmed",
				Data:      map[string]interface{}{"topics": client.Topics()},
				Timestamp: time.Now(),
				RequestID: message.RequestID,
			})
		}
	case "unsubscribe":
		if topic := stringField(message.Data, "topic"); topic != "" {
			client.Unsubscribe(topic)
		}
	case "device_command":
		h.handleDeviceCommand(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.sendError(client, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

func stringField(data interface{}, key string) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// handleDeviceCommand runs a live command for the client's logger
func (h *WebSocketHandler) handleDeviceCommand(client *Client, message *WebSocketMessage) {
	if client.DeviceID == nil {
		h.sendError(client, "device_command only available on device connections")
		return
	}
	command := stringField(message.Data, "command")
	if command == "" {
		h.sendError(client, "command is required")
		return
	}

	go h.executeDeviceCommand(client, *client.DeviceID, command, message)
}

// executeDeviceCommand executes a device command
func (h *WebSocketHandler) executeDeviceCommand(client *Client, deviceID, command string, message *WebSocketMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		result interface{}
		err    error
	)
	switch command {
	case "live_start":
		req := &service.StartLiveRequest{Label: stringField(message.Data, "label")}
		if data, ok := message.Data.(map[string]interface{}); ok {
			if ms, ok := data["poll_interval_ms"].(float64); ok {
				req.PollIntervalMs = int(ms)
			}
		}
		result, err = h.acquisitionService.StartLive(ctx, deviceID, req)
	case "live_stop":
		result, err = h.acquisitionService.StopLive(ctx, deviceID)
	case "status":
		result, err = h.acquisitionService.LiveStatus(ctx, deviceID)
	case "test":
		result, err = h.deviceService.TestDevice(ctx, deviceID)
	default:
		h.sendError(client, fmt.Sprintf("unknown command: %s", command))
		return
	}

	data := map[string]interface{}{
		"command": command,
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// sendInitialDeviceStatus sends the device and its live loop, if any
func (h *WebSocketHandler) sendInitialDeviceStatus(client *Client, device *model.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data := map[string]interface{}{"device": device}
	if live, err := h.acquisitionService.LiveStatus(ctx, device.DeviceID); err == nil {
		data["live"] = live
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      data,
		Timestamp: time.Now(),
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// MessageType names the WebSocket message of an event type
func MessageType(t model.EventType) string {
	return strings.ToLower(string(t))
}

// BroadcastDeviceEvent sends an event to the clients of its logger and to
// the event clients
func (h *WebSocketHandler) BroadcastDeviceEvent(event *model.DeviceEvent) {
	topic := MessageType(event.EventType)
	message := &WebSocketMessage{
		Type:      topic,
		Data:      event,
		Timestamp: event.Timestamp,
	}
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.broadcastToClients(h.connections.GetDeviceClients(event.DeviceID), topic, messageBytes)
	h.broadcastToClients(h.connections.GetEventClients(), topic, messageBytes)
}

// broadcastToClients broadcasts message to specified clients
func (h *WebSocketHandler) broadcastToClients(clients []*Client, topic string, messageBytes []byte) {
	for _, client := range clients {
		if !client.Wants(topic) {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
				zap.String("type", topic),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
