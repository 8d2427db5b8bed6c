package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello         = "HELLO"
	TypeWelcome       = "WELCOME"
	TypeFrame         = "FRAME"
	TypeControl       = "CONTROL"
	TypeAck           = "ACK"
	TypeEventBatchReq = "EVENT_BATCH_REQ"
	TypeEventBatch    = "EVENT_BATCH"
)

// Control commands.
const (
	CmdPause  = "PAUSE"
	CmdResume = "RESUME"
	CmdStep   = "STEP"
	CmdSave   = "SAVE"
	CmdPlant  = "PLANT"
)

// Narrative event severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityAlert = "alert"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
