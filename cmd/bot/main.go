// Command bot is a probe client: it joins a server, subscribes to the
// chunk around a world position, and alternates placing and clearing a
// light-emitting block there, logging the ACK and LIGHT traffic that
// comes back. Useful for watching propagation latency on a live server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxlight.dev/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "session name")
		blockID = flag.Uint("block", 9, "block id to place (9 is TORCH with the stock configs/blocks.json)")
		px      = flag.Int("x", 0, "probe world x")
		py      = flag.Int("y", 72, "probe world y")
		pz      = flag.Int("z", 0, "probe world z")
		period  = flag.Duration("period", 2*time.Second, "time between edits")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var wmu sync.Mutex
	writeJSON := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
	}
	if err := writeJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// Alternate place/clear at the probe position.
	go func() {
		ticker := time.NewTicker(*period)
		defer ticker.Stop()
		placed := false
		n := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			n++
			id := uint16(*blockID)
			tag := fmt.Sprintf("place_%d", n)
			if placed {
				id = 0
				tag = fmt.Sprintf("clear_%d", n)
			}
			placed = !placed
			_ = writeJSON(protocol.EditMsg{
				Type:            protocol.TypeEdit,
				ProtocolVersion: protocol.Version,
				Pos:             [3]int{*px, *py, *pz},
				Block:           id,
				Tag:             tag,
			})
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s tick_rate=%d seed=%d palette=%d",
				w.SessionID, w.WorldParams.TickRateHz, w.WorldParams.Seed, w.BlockPalette.Count)
			// Subscribe to the chunk the probe position lives in.
			_ = writeJSON(protocol.ChunkReqMsg{
				Type:            protocol.TypeChunkReq,
				ProtocolVersion: protocol.Version,
				Pos:             [3]int{floorDiv(*px, 32), floorDiv(*py, 32), floorDiv(*pz, 32)},
			})

		case protocol.TypeChunk:
			var c protocol.ChunkMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			logger.Printf("CHUNK pos=%v light_version=%d blocks=%dB light=%dB",
				c.Pos, c.LightVersion, len(c.Blocks), lightLen(c.Light))

		case protocol.TypeLight:
			var l protocol.LightMsg
			if err := json.Unmarshal(msg, &l); err != nil {
				continue
			}
			logger.Printf("LIGHT pos=%v light_version=%d", l.Pos, l.LightVersion)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if a.Accepted {
				logger.Printf("ACK %s tag=%s tick=%d", a.AckFor, a.Tag, a.ServerTick)
			} else {
				logger.Printf("ACK %s tag=%s rejected code=%s", a.AckFor, a.Tag, a.Code)
			}
		}
	}
}

func lightLen(light [6]string) int {
	n := 0
	for _, s := range light {
		n += len(s)
	}
	return n
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
