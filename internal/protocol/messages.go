package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	EventCursor bool `json:"event_cursor,omitempty"`
	MaxQueue    int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Tick            uint64         `json:"tick"`
	Paused          bool           `json:"paused,omitempty"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	GridWidth  int   `json:"grid_width"`
	GridHeight int   `json:"grid_height"`
	YearTicks  int   `json:"year_ticks"`
	Seed       int64 `json:"seed"`
}

type CatalogDigests struct {
	SpeciesPalette DigestRef `json:"species_palette"`
	SpeciesDigest  string    `json:"species_digest"`
	WeatherDigest  string    `json:"weather_digest"`
	TuningDigest   string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CONTROL (client -> server): pause/resume/step/save plus planting from
// the seed bank.
type ControlMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id"`
	Command         string    `json:"command"`
	SaveName        string    `json:"save_name,omitempty"`
	Plant           *PlantCmd `json:"plant,omitempty"`
}

// PlantCmd asks for a flower at a cell. BankID selects a stored genome
// from the seed bank; zero plants a fresh random flower.
type PlantCmd struct {
	Cell   [2]int `json:"cell"`
	BankID int64  `json:"bank_id,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
