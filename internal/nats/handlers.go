package nats

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// StateFunc reports the agent's current lifecycle state for the status
// command. Supplied by the host wiring so the handlers never hold a
// reference to the controller itself.
type StateFunc func() string

// CommandHandlers manages the request/reply command subscriptions
type CommandHandlers struct {
	logger        *zap.Logger
	deviceID      string
	subjectPrefix string
	version       string
	state         StateFunc
	started       time.Time
}

// NewCommandHandlers creates the command handler set
func NewCommandHandlers(logger *zap.Logger, deviceID, subjectPrefix, version string, state StateFunc) *CommandHandlers {
	return &CommandHandlers{
		logger:        logger,
		deviceID:      deviceID,
		subjectPrefix: subjectPrefix,
		version:       version,
		state:         state,
		started:       time.Now(),
	}
}

type pingResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type statusResponse struct {
	Status        string `json:"status"`
	State         string `json:"state"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// handleWithRecovery wraps a command handler with panic recovery so a
// broken handler cannot take the whole agent down
func (h *CommandHandlers) handleWithRecovery(name string, handler nats.MsgHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Panic recovered in command handler",
					zap.String("handler", name),
					zap.String("subject", msg.Subject),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))

				response := errorResponse{
					Status:    "error",
					Error:     fmt.Sprintf("Internal error: handler panicked: %v", r),
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				}
				responseBytes, _ := json.Marshal(response)
				msg.Respond(responseBytes)
			}
		}()

		handler(msg)
	}
}

// SubscribeAll subscribes to all command subjects for this device
func (h *CommandHandlers) SubscribeAll(client *Client) error {
	if _, err := client.Subscribe(
		fmt.Sprintf("%s.%s.cmd.ping", h.subjectPrefix, h.deviceID),
		h.handleWithRecovery("ping", h.handlePing),
	); err != nil {
		return err
	}

	if _, err := client.Subscribe(
		fmt.Sprintf("%s.%s.cmd.status", h.subjectPrefix, h.deviceID),
		h.handleWithRecovery("status", h.handleStatus),
	); err != nil {
		return err
	}

	return nil
}

// handlePing answers a liveness probe
func (h *CommandHandlers) handlePing(msg *nats.Msg) {
	h.respond(msg, pingResponse{
		Status:    "ok",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports the agent's lifecycle state and uptime
func (h *CommandHandlers) handleStatus(msg *nats.Msg) {
	h.respond(msg, statusResponse{
		Status:        "ok",
		State:         h.state(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *CommandHandlers) respond(msg *nats.Msg, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal command response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		h.logger.Warn("Failed to respond to command",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}
