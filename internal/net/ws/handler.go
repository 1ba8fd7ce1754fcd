package ws

import (
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"orbitlab/server"
	"orbitlab/server/internal/net/proto"
	"orbitlab/server/internal/render"
)

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

type HandlerConfig struct {
	Logger *log.Logger
}

type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	viewerID := r.URL.Query().Get("id")
	if viewerID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", viewerID, err)
		return
	}

	sub, ok := h.hub.Subscribe(viewerID, conn)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown viewer")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	session := subscription(sub)

	data, err := h.hub.MarshalHello(viewerID)
	if err != nil {
		h.logger.Printf("failed to marshal hello for %s: %v", viewerID, err)
		h.hub.Detach(viewerID, sub, "hello_failed")
		return
	}

	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.hub.Detach(viewerID, sub, "write_failed")
		return
	}
	h.hub.RecordTelemetryBroadcast(len(data), 1)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Detach(viewerID, sub, "read_failed")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", viewerID, err)
			continue
		}

		if msg.Ack != nil {
			h.hub.RecordAck(viewerID, msg.Job, *msg.Ack)
		}

		normalizedSeq := uint64(0)
		if msg.CommandSeq != nil && *msg.CommandSeq > 0 {
			normalizedSeq = *msg.CommandSeq
		}

		writeJSON := func(data []byte, err error) bool {
			if err != nil {
				h.logger.Printf("failed to marshal response for %s: %v", viewerID, err)
				return true
			}
			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Detach(viewerID, sub, "write_failed")
				return false
			}
			return true
		}

		sendDuplicateAck := func() bool {
			if normalizedSeq == 0 {
				return true
			}
			return writeJSON(proto.EncodeCommandAck(proto.CommandAck{Seq: normalizedSeq}))
		}

		sendCommandAck := func(job uint64) bool {
			if normalizedSeq == 0 {
				return true
			}
			ack := proto.CommandAck{Seq: normalizedSeq}
			if job > 0 {
				ack.Job = job
			}
			if !writeJSON(proto.EncodeCommandAck(ack)) {
				return false
			}
			session.StoreLastCommandSeq(normalizedSeq)
			return true
		}

		sendCommandReject := func(reason string, retry bool) bool {
			if normalizedSeq == 0 {
				return true
			}
			reject := proto.CommandReject{Seq: normalizedSeq, Reason: reason}
			if retry {
				reject.Retry = true
			}
			return writeJSON(proto.EncodeCommandReject(reject))
		}

		switch msg.Type {
		case proto.TypeRender:
			if normalizedSeq > 0 {
				if last := session.LastCommandSeq(); last > 0 && normalizedSeq <= last {
					if !sendDuplicateAck() {
						return
					}
					continue
				}
			}
			staged, ok, reason := h.hub.StageRender(viewerID, msg)
			if normalizedSeq > 0 {
				if ok {
					if !sendCommandAck(staged.Job) {
						return
					}
				} else {
					retry := reason == render.RejectQueueFull
					if !sendCommandReject(reason, retry) {
						return
					}
				}
			}
			if !ok && reason == render.RejectUnknownViewer {
				h.logger.Printf("render ignored for unknown viewer %s", viewerID)
			}
		case proto.TypePreset:
			if normalizedSeq > 0 {
				if last := session.LastCommandSeq(); last > 0 && normalizedSeq <= last {
					if !sendDuplicateAck() {
						return
					}
					continue
				}
			}
			staged, ok, reason := h.hub.StagePreset(viewerID, msg)
			if normalizedSeq > 0 {
				if ok {
					if !sendCommandAck(staged.Job) {
						return
					}
				} else {
					retry := reason == render.RejectQueueFull
					if !sendCommandReject(reason, retry) {
						return
					}
				}
			}
			if !ok {
				if reason == render.RejectUnknownPreset {
					h.logger.Printf("unknown preset %q from %s", msg.Preset, viewerID)
				} else if reason == render.RejectUnknownViewer {
					h.logger.Printf("preset ignored for unknown viewer %s", viewerID)
				}
			}
		case proto.TypeCancel:
			if normalizedSeq > 0 {
				if last := session.LastCommandSeq(); last > 0 && normalizedSeq <= last {
					if !sendDuplicateAck() {
						return
					}
					continue
				}
			}
			job, ok := h.hub.CancelJob(viewerID)
			if normalizedSeq > 0 {
				if ok {
					if !sendCommandAck(job) {
						return
					}
				} else {
					if !sendCommandReject(render.RejectNoActiveJob, false) {
						return
					}
				}
			}
		case proto.TypeHeartbeat:
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(viewerID, now, msg.SentAt)
			if !ok {
				continue
			}

			ack := proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			}

			data, err := proto.EncodeHeartbeat(ack)
			if err != nil {
				h.logger.Printf("failed to marshal heartbeat ack for %s: %v", viewerID, err)
				continue
			}

			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Detach(viewerID, sub, "write_failed")
				return
			}
		case proto.TypeReplay:
			if msg.ReplayFrom == nil {
				continue
			}
			frames, nack, ok := h.hub.HandleReplayRequest(viewerID, msg.Job, *msg.ReplayFrom)
			if !ok {
				continue
			}
			if nack != nil {
				if err := session.WriteMessage(websocket.TextMessage, nack); err != nil {
					h.hub.Detach(viewerID, sub, "write_failed")
					return
				}
				continue
			}
			sent := 0
			for _, frame := range frames {
				if err := session.WriteMessage(websocket.TextMessage, frame); err != nil {
					h.hub.Detach(viewerID, sub, "write_failed")
					return
				}
				sent += len(frame)
			}
			if len(frames) > 0 {
				h.hub.RecordTelemetryBroadcast(sent, len(frames))
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, viewerID)
		}
	}
}
