package protocol

// Delta operations.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Delta is one externally visible state change. Add carries the full actor
// state, update only the changed fields, remove just the id.
type Delta struct {
	Op     string         `json:"op"`
	ID     string         `json:"id"`
	Actor  *ActorState    `json:"actor,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ActorState is the wire form of an actor. Fields irrelevant to a kind are
// omitted.
type ActorState struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Species string `json:"species,omitempty"`
	Pos     [2]int `json:"pos"`

	Health  float64 `json:"health,omitempty"`
	Stamina float64 `json:"stamina,omitempty"`

	Sex     string      `json:"sex,omitempty"`
	Growth  float64     `json:"growth,omitempty"`
	Toxic   float64     `json:"toxicity,omitempty"`
	Attract float64     `json:"attract,omitempty"`
	Effects *[4]float64 `json:"effects,omitempty"`
	Image   []byte      `json:"image,omitempty"`

	OwnerID  string  `json:"owner_id,omitempty"`
	HomeID   string  `json:"home_id,omitempty"`
	Strength float64 `json:"strength,omitempty"`
	Lifespan int     `json:"lifespan,omitempty"`
	Timer    int     `json:"timer,omitempty"`
	Food     float64 `json:"food,omitempty"`
	Stored   float64 `json:"stored,omitempty"`
}

// NarrativeEvent is one renderer-facing story line.
type NarrativeEvent struct {
	Tick       uint64  `json:"tick"`
	Message    string  `json:"message"`
	Severity   string  `json:"severity"`
	Importance float64 `json:"importance"`
	Pos        *[2]int `json:"pos,omitempty"`
}

// ClimateState is the per-tick climate readout.
type ClimateState struct {
	Season       string  `json:"season"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	WindX        float64 `json:"wind_x"`
	WindY        float64 `json:"wind_y"`
	WindStrength float64 `json:"wind_strength"`
	Event        string  `json:"event,omitempty"`
}

// FRAME (server -> client): everything a renderer needs for one tick.
type FrameMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Deltas          []Delta          `json:"deltas"`
	Events          []NarrativeEvent `json:"events,omitempty"`
	Summary         map[string]int   `json:"summary"`
	Climate         ClimateState     `json:"climate"`
	Cursor          uint64           `json:"cursor"`
	Paused          bool             `json:"paused,omitempty"`
}
