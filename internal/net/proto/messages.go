package proto

import (
	"encoding/json"
	"fmt"

	"orbitlab/server/catalog"
	"orbitlab/server/internal/render"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	typeHello         = "hello"
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
	typeJobAccepted   = "jobAccepted"
	typeGridChunk     = "gridChunk"
	typePointBatch    = "pointBatch"
	typeSegmentBatch  = "segmentBatch"
	typeProgress      = "progress"
	typeJobDone       = "jobDone"
	typeJobFailed     = "jobFailed"
	typeReplayNack    = "replayNack"
)

// Client message type identifiers.
const (
	TypeRender    = "render"
	TypePreset    = "preset"
	TypeCancel    = "cancel"
	TypeReplay    = "replay"
	TypeHeartbeat = "heartbeat"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeHello         = typeHello
	TypeCommandAck    = typeCommandAck
	TypeCommandReject = typeCommandReject
	TypeJobAccepted   = typeJobAccepted
	TypeGridChunk     = typeGridChunk
	TypePointBatch    = typePointBatch
	TypeSegmentBatch  = typeSegmentBatch
	TypeProgress      = typeProgress
	TypeJobDone       = typeJobDone
	TypeJobFailed     = typeJobFailed
	TypeReplayNack    = typeReplayNack
)

type helloPayload interface {
	ProtoHello()
}

// EncodeHello renders a hello payload.
func EncodeHello(msg helloPayload) ([]byte, error) {
	switch payload := msg.(type) {
	case HelloV1:
		return EncodeHelloV1(payload)
	case *HelloV1:
		if payload == nil {
			return json.Marshal(payload)
		}
		return EncodeHelloV1(*payload)
	default:
		return json.Marshal(msg)
	}
}

type replayNackPayload interface {
	ProtoReplayNack()
}

// EncodeReplayNack renders a replay nack payload.
func EncodeReplayNack(msg replayNackPayload) ([]byte, error) {
	switch payload := msg.(type) {
	case ReplayNackV1:
		return EncodeReplayNackV1(payload)
	case *ReplayNackV1:
		if payload == nil {
			return json.Marshal(payload)
		}
		return EncodeReplayNackV1(*payload)
	default:
		return json.Marshal(msg)
	}
}

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver        int          `json:"ver,omitempty"`
	Type       string       `json:"type"`
	Spec       *render.Spec `json:"spec,omitempty"`
	Preset     string       `json:"preset,omitempty"`
	Overrides  *render.Spec `json:"overrides,omitempty"`
	SentAt     int64        `json:"sentAt"`
	Job        uint64       `json:"job,omitempty"`
	Ack        *uint64      `json:"ack"`
	ReplayFrom *uint64      `json:"replayFrom,omitempty"`
	CommandSeq *uint64      `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// CommandAck describes an acknowledgement of a processed command.
type CommandAck struct {
	Seq uint64
	Job uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Job  uint64 `json:"job,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
	}
	if msg.Job > 0 {
		frame.Job = msg.Job
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
	Job    uint64
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
		Job    uint64 `json:"job,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
	}
	if msg.Retry {
		frame.Retry = true
	}
	if msg.Job > 0 {
		frame.Job = msg.Job
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// HelloV1 captures the version 1 hello payload sent after a subscribe.
type HelloV1 struct {
	Ver             int               `json:"ver"`
	Type            string            `json:"type"`
	ID              string            `json:"id"`
	Families        []string          `json:"families"`
	Limits          render.Limits     `json:"limits"`
	Presets         []catalog.Summary `json:"presets,omitempty"`
	CatalogHash     string            `json:"catalogHash,omitempty"`
	HeartbeatMillis int64             `json:"heartbeatMillis,omitempty"`
	Resync          bool              `json:"resync"`
}

// ProtoHello tags the struct as a websocket hello payload.
func (HelloV1) ProtoHello() {}

// EncodeHelloV1 renders a versioned hello payload.
func EncodeHelloV1(msg HelloV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeHello
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// ReplayNackV1 tells the client a replay request cannot be served and the
// stream must be re-rendered from a fresh job.
type ReplayNackV1 struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Job    uint64 `json:"job"`
	Reason string `json:"reason"`
	Resync bool   `json:"resync"`
}

// ProtoReplayNack tags the struct as a websocket replay nack payload.
func (ReplayNackV1) ProtoReplayNack() {}

// EncodeReplayNackV1 renders a versioned replay nack payload.
func EncodeReplayNackV1(msg ReplayNackV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeReplayNack
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// EncodeFrame renders one job stream frame with its wire envelope. Seq is the
// per-job frame sequence assigned by the scheduler.
func EncodeFrame(info render.JobInfo, seq uint64, frame render.Frame) ([]byte, error) {
	switch f := frame.(type) {
	case render.Accepted:
		payload := struct {
			Ver    int         `json:"ver"`
			Type   string      `json:"type"`
			Job    uint64      `json:"job"`
			Seq    uint64      `json:"seq"`
			Family string      `json:"family"`
			Spec   render.Spec `json:"spec"`
		}{
			Ver:    Version,
			Type:   typeJobAccepted,
			Job:    info.ID,
			Seq:    seq,
			Family: info.Family,
			Spec:   f.Spec,
		}
		return json.Marshal(payload)
	case render.GridChunk:
		payload := struct {
			Ver   int     `json:"ver"`
			Type  string  `json:"type"`
			Job   uint64  `json:"job"`
			Seq   uint64  `json:"seq"`
			Index int     `json:"index"`
			Y0    int     `json:"y0"`
			Y1    int     `json:"y1"`
			Width int     `json:"width"`
			Iters []int32 `json:"iters"`
			Roots []int32 `json:"roots,omitempty"`
			Last  bool    `json:"last,omitempty"`
		}{
			Ver:   Version,
			Type:  typeGridChunk,
			Job:   info.ID,
			Seq:   seq,
			Index: f.Index,
			Y0:    f.Y0,
			Y1:    f.Y1,
			Width: f.Width,
			Iters: f.Iters,
			Roots: f.Roots,
			Last:  f.Last,
		}
		return json.Marshal(payload)
	case render.PointBatch:
		payload := struct {
			Ver    int       `json:"ver"`
			Type   string    `json:"type"`
			Job    uint64    `json:"job"`
			Seq    uint64    `json:"seq"`
			Index  int       `json:"index"`
			Dim    int       `json:"dim"`
			Points []float64 `json:"points"`
			Last   bool      `json:"last,omitempty"`
		}{
			Ver:    Version,
			Type:   typePointBatch,
			Job:    info.ID,
			Seq:    seq,
			Index:  f.Index,
			Dim:    f.Dim,
			Points: f.Points,
			Last:   f.Last,
		}
		return json.Marshal(payload)
	case render.SegmentBatch:
		payload := struct {
			Ver      int       `json:"ver"`
			Type     string    `json:"type"`
			Job      uint64    `json:"job"`
			Seq      uint64    `json:"seq"`
			Index    int       `json:"index"`
			Segments []float64 `json:"segments"`
			Last     bool      `json:"last,omitempty"`
		}{
			Ver:      Version,
			Type:     typeSegmentBatch,
			Job:      info.ID,
			Seq:      seq,
			Index:    f.Index,
			Segments: f.Segments,
			Last:     f.Last,
		}
		return json.Marshal(payload)
	case render.Progress:
		payload := struct {
			Ver   int    `json:"ver"`
			Type  string `json:"type"`
			Job   uint64 `json:"job"`
			Seq   uint64 `json:"seq"`
			Done  int    `json:"done"`
			Total int    `json:"total"`
		}{
			Ver:   Version,
			Type:  typeProgress,
			Job:   info.ID,
			Seq:   seq,
			Done:  f.Done,
			Total: f.Total,
		}
		return json.Marshal(payload)
	case render.Done:
		payload := struct {
			Ver           int          `json:"ver"`
			Type          string       `json:"type"`
			Job           uint64       `json:"job"`
			Seq           uint64       `json:"seq"`
			Cells         int          `json:"cells,omitempty"`
			Points        int          `json:"points,omitempty"`
			Segments      int          `json:"segments,omitempty"`
			Roots         [][2]float64 `json:"roots,omitempty"`
			ElapsedMillis int64        `json:"elapsedMillis"`
		}{
			Ver:           Version,
			Type:          typeJobDone,
			Job:           info.ID,
			Seq:           seq,
			Cells:         f.Cells,
			Points:        f.Points,
			Segments:      f.Segments,
			Roots:         f.Roots,
			ElapsedMillis: f.Elapsed.Milliseconds(),
		}
		return json.Marshal(payload)
	case render.Failure:
		payload := struct {
			Ver    int    `json:"ver"`
			Type   string `json:"type"`
			Job    uint64 `json:"job"`
			Seq    uint64 `json:"seq"`
			Reason string `json:"reason"`
		}{
			Ver:    Version,
			Type:   typeJobFailed,
			Job:    info.ID,
			Seq:    seq,
			Reason: f.Reason,
		}
		return json.Marshal(payload)
	default:
		return nil, fmt.Errorf("proto: unknown frame type %T", frame)
	}
}
