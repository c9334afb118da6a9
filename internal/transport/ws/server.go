package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voxlight.dev/internal/protocol"
	"voxlight.dev/internal/sim/light"
	"voxlight.dev/internal/sim/world"
)

type Server struct {
	world   *world.World
	schemas *protocol.Schemas
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, schemas *protocol.Schemas, logger *log.Logger) *Server {
	s := &Server{
		world:   w,
		schemas: schemas,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		done := make(chan struct{})

		// Writer goroutine. The out channel is fed by the world loop;
		// closing done tears it down when the reader exits.
		go func() {
			for {
				select {
				case <-done:
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeEdit:
				s.handleEdit(sessionID, out, msg)
			case protocol.TypeChunkReq:
				s.handleChunkReq(sessionID, msg)
			}
		}

		// Cleanup.
		close(done)
		s.world.Leave() <- sessionID
		s.log.Printf("session %s disconnected", sessionID)
	}
}

func (s *Server) handleEdit(sessionID string, out chan []byte, msg []byte) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return
	}
	if err := s.schemas.Edit.Validate(v); err != nil {
		s.ack(out, protocol.AckMsg{AckFor: protocol.TypeEdit, Accepted: false, Code: protocol.ErrBadMsg})
		return
	}
	var edit protocol.EditMsg
	if err := json.Unmarshal(msg, &edit); err != nil {
		return
	}
	if edit.ProtocolVersion != protocol.Version {
		s.ack(out, protocol.AckMsg{AckFor: protocol.TypeEdit, Tag: edit.Tag, Accepted: false, Code: protocol.ErrBadMsg})
		return
	}
	req := world.EditRequest{
		Session: sessionID,
		Pos:     world.Vec3i{X: edit.Pos[0], Y: edit.Pos[1], Z: edit.Pos[2]},
		Block:   edit.Block,
		Tag:     edit.Tag,
	}
	select {
	case s.world.Edits() <- req:
	default:
		// The world drains a bounded number of edits per tick; when the
		// queue is full the client is told to back off.
		s.ack(out, protocol.AckMsg{AckFor: protocol.TypeEdit, Tag: edit.Tag, Accepted: false, Code: protocol.ErrRateLimit})
	}
}

func (s *Server) handleChunkReq(sessionID string, msg []byte) {
	var req protocol.ChunkReqMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}
	if req.ProtocolVersion != protocol.Version {
		return
	}
	s.world.ChunkReqs() <- world.ChunkRequest{
		Session: sessionID,
		Pos:     light.ChunkPos{X: req.Pos[0], Y: req.Pos[1], Z: req.Pos[2]},
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return "", nil
	}
	if err := s.schemas.Hello.Validate(v); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "malformed HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	// Chunk payloads dominate the out queue; a joining viewer requests a
	// full view radius of them at once.
	out = make(chan []byte, 256)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name:       hello.Name,
		ViewRadius: hello.ViewRadius,
		Out:        out,
		Resp:       respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	s.log.Printf("session %s connected (%s)", resp.Welcome.SessionID, hello.Name)

	return resp.Welcome.SessionID, out
}

func (s *Server) ack(out chan []byte, ack protocol.AckMsg) {
	ack.Type = protocol.TypeAck
	ack.ProtocolVersion = protocol.Version
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
