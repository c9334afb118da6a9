package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxlight.dev/internal/protocol"
	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/world"
)

func newTestServer(t *testing.T) (*httptest.Server, *world.World) {
	t.Helper()
	reg, err := block.New([]block.Def{
		{ID: "AIR"},
		{ID: "STONE", Solid: true, Absorption: [3]uint8{255, 255, 255}},
		{ID: "DIRT", Solid: true, Absorption: [3]uint8{255, 255, 255}},
		{ID: "GRASS", Solid: true, Absorption: [3]uint8{255, 255, 255}},
		{ID: "SAND", Solid: true, Absorption: [3]uint8{255, 255, 255}},
		{ID: "WATER", Absorption: [3]uint8{32, 16, 8}},
		{ID: "GLOWSTONE", Solid: true, Absorption: [3]uint8{255, 255, 255}, Emission: [3]uint8{255, 224, 160}},
		{ID: "TORCH", Emission: [3]uint8{255, 224, 160}},
	})
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}
	w, err := world.New(world.Config{
		WorldID:       "ws-test",
		TickRateHz:    50,
		Seed:          7,
		HeightChunks:  2,
		ViewRadius:    2,
		SeaLevel:      20,
		MaxLoaded:     256,
		TerrainScale:  0.05,
		TorchDensity:  0,
		EditsPerTick:  32,
		ChunksPerTick: 16,
		PendingEdits:  64,
	}, reg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	schemas, err := protocol.CompileSchemas(filepath.Join("..", "..", "..", "schemas"))
	if err != nil {
		t.Fatalf("CompileSchemas: %v", err)
	}

	srv := NewServer(w, schemas, log.New(io.Discard, "", 0))
	ts := httptest.NewServer(srv.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts, w
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

// readUntil skips messages of other types until one of wantType
// arrives. The world pushes LIGHT invalidations on its own schedule,
// so callers can't assume strict alternation.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage waiting for %s: %v", wantType, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("DecodeBase: %v", err)
		}
		if base.Type == wantType {
			return b
		}
	}
}

func TestServer_HandshakeChunkEdit(t *testing.T) {
	ts, w := newTestServer(t)
	conn := dial(t, ts)
	defer conn.Close()

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            "viewer1",
		ViewRadius:      1,
	})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("Unmarshal WELCOME: %v", err)
	}
	if welcome.SessionID == "" {
		t.Fatalf("WELCOME missing session_id")
	}
	if welcome.WorldParams.ChunkSize != [3]int{32, 32, 32} {
		t.Fatalf("chunk_size = %v", welcome.WorldParams.ChunkSize)
	}
	if welcome.BlockPalette.Digest != w.Blocks().PaletteDigest {
		t.Fatalf("palette digest mismatch")
	}

	send(t, conn, protocol.ChunkReqMsg{
		Type:            protocol.TypeChunkReq,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{0, 1, 0},
	})
	var chunk protocol.ChunkMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeChunk), &chunk); err != nil {
		t.Fatalf("Unmarshal CHUNK: %v", err)
	}
	if chunk.Pos != [3]int{0, 1, 0} || chunk.Encoding != "RLE" || chunk.Blocks == "" {
		t.Fatalf("CHUNK = %+v", chunk)
	}
	for i, s := range chunk.Light {
		if s == "" {
			t.Fatalf("CHUNK light[%d] empty", i)
		}
	}

	torch, ok := w.Blocks().IDOf("TORCH")
	if !ok {
		t.Fatalf("missing TORCH")
	}
	send(t, conn, protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{5, 60, 5},
		Block:           torch,
		Tag:             "e-001",
	})
	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("Unmarshal ACK: %v", err)
	}
	if !ack.Accepted || ack.Tag != "e-001" || ack.AckFor != protocol.TypeEdit {
		t.Fatalf("ACK = %+v", ack)
	}

	// The edit darkens and refills the chunk we subscribed to.
	var lightMsg protocol.LightMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeLight), &lightMsg); err != nil {
		t.Fatalf("Unmarshal LIGHT: %v", err)
	}
	if lightMsg.Pos != [3]int{0, 1, 0} {
		t.Fatalf("LIGHT pos = %v", lightMsg.Pos)
	}

	// Out-of-range block id fails schema validation before reaching the world.
	send(t, conn, map[string]any{
		"type":             protocol.TypeEdit,
		"protocol_version": protocol.Version,
		"pos":              []int{5, 61, 5},
		"block":            70000,
	})
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("Unmarshal ACK: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrBadMsg {
		t.Fatalf("ACK = %+v, want rejected %s", ack, protocol.ErrBadMsg)
	}
}

func TestServer_RejectsNonHelloFirst(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	defer conn.Close()

	send(t, conn, protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{0, 0, 0},
		Block:           1,
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}

func TestServer_RejectsBadHello(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	defer conn.Close()

	// Schema requires a non-empty name.
	send(t, conn, map[string]any{
		"type":             protocol.TypeHello,
		"protocol_version": protocol.Version,
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}
