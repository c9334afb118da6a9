package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	ViewRadius      int    `json:"view_radius,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    DigestRef   `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz   int    `json:"tick_rate_hz"`
	ChunkSize    [3]int `json:"chunk_size"`
	HeightChunks int    `json:"height_chunks"`
	ViewRadius   int    `json:"view_radius"`
	SeaLevel     int    `json:"sea_level"`
	Seed         int64  `json:"seed"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CHUNK_REQ (client -> server): ask for one chunk's current data.
type ChunkReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
}

// CHUNK (server -> client): block ids plus all six light grids,
// RLE+base64 encoded. Subscribes the session to the chunk.
type ChunkMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Pos             [3]int    `json:"pos"`
	Encoding        string    `json:"encoding"`
	Blocks          string    `json:"blocks"`
	Light           [6]string `json:"light"`
	LightVersion    uint64    `json:"light_version"`
}

// LIGHT (server -> client): light settled in a subscribed chunk; the
// client refetches when the version outruns what it holds.
type LightMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	LightVersion    uint64 `json:"light_version"`
}

// EDIT (client -> server): set a block at a world position. Clearing is
// an edit to AIR (block 0).
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	Block           uint16 `json:"block"`
	Tag             string `json:"tag,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Tag             string `json:"tag,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
