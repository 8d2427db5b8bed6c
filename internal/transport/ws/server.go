// Package ws serves the renderer boundary over websockets: HELLO/WELCOME
// handshake, the per-tick frame stream, and control commands routed into
// the world loop.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/world"
)

const (
	helloWait  = 5 * time.Second
	writeWait  = 5 * time.Second
	pongWait   = 75 * time.Second
	pingPeriod = 30 * time.Second
)

// SeedResolver turns a seed-bank id into a genome before the PLANT command
// enters the world loop. The loop never touches the database.
type SeedResolver interface {
	Resolve(bankID int64) (genetics.Genome, bool, error)
}

type Server struct {
	world *world.World
	bank  SeedResolver
	log   *log.Logger

	upgrader websocket.Upgrader
}

// NewServer wires a world and an optional seed bank. A nil bank refuses
// bank-id plants but leaves everything else working.
func NewServer(w *world.World, bank SeedResolver, logger *log.Logger) *Server {
	return &Server{
		world: w,
		bank:  bank,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
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

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: frames and acks share the out channel, so the
		// connection only ever has one writer. Pings keep idle observers
		// from tripping the read deadline.
		go func() {
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Control commands are cheap for the client to emit and each one
		// crosses into the tick loop, so they are budgeted per session.
		limiter := newTokenBucket(10, 5)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeControl:
				var ctl protocol.ControlMsg
				if err := json.Unmarshal(msg, &ctl); err != nil {
					continue
				}
				if ctl.ProtocolVersion != protocol.Version {
					s.send(ctx, out, refuse(ctl.ReqID, protocol.ErrStale, "protocol version mismatch", s.world.CurrentTick()))
					continue
				}
				if !limiter.allow() {
					s.send(ctx, out, refuse(ctl.ReqID, protocol.ErrRateLimit, "too many control commands", s.world.CurrentTick()))
					continue
				}
				s.routeControl(ctx, sessionID, out, ctl)

			case protocol.TypeEventBatchReq:
				var req protocol.EventBatchReqMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					continue
				}
				if !limiter.allow() {
					s.send(ctx, out, refuse(req.ReqID, protocol.ErrRateLimit, "too many control commands", s.world.CurrentTick()))
					continue
				}
				respCh := make(chan protocol.EventBatchMsg, 1)
				env := world.EventBatchEnvelope{SessionID: sessionID, Msg: req, Resp: respCh}
				select {
				case s.world.EventBatch() <- env:
				case <-ctx.Done():
					return
				}
				select {
				case batch := <-respCh:
					s.send(ctx, out, batch)
				case <-ctx.Done():
					return
				}
			}
		}

		select {
		case s.world.Detach() <- sessionID:
		case <-time.After(5 * time.Second):
		}
	}
}

// routeControl resolves any bank genome, forwards the command to the world
// loop, and relays the ack.
func (s *Server) routeControl(ctx context.Context, sessionID string, out chan []byte, ctl protocol.ControlMsg) {
	var genome *genetics.Genome
	if ctl.Command == protocol.CmdPlant && ctl.Plant != nil && ctl.Plant.BankID != 0 {
		if s.bank == nil {
			s.send(ctx, out, refuse(ctl.ReqID, protocol.ErrBankNotFound, "seed bank disabled", s.world.CurrentTick()))
			return
		}
		g, ok, err := s.bank.Resolve(ctl.Plant.BankID)
		if err != nil {
			s.logf("seed bank lookup %d: %v", ctl.Plant.BankID, err)
			s.send(ctx, out, refuse(ctl.ReqID, protocol.ErrInternal, "seed bank lookup failed", s.world.CurrentTick()))
			return
		}
		if !ok {
			s.send(ctx, out, refuse(ctl.ReqID, protocol.ErrBankNotFound, "no banked seed with that id", s.world.CurrentTick()))
			return
		}
		genome = &g
	}

	respCh := make(chan protocol.AckMsg, 1)
	env := world.ControlEnvelope{SessionID: sessionID, Msg: ctl, Genome: genome, Resp: respCh}
	select {
	case s.world.Control() <- env:
	case <-ctx.Done():
		return
	}
	select {
	case ack := <-respCh:
		s.send(ctx, out, ack)
	case <-ctx.Done():
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "observer"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.AttachResponse, 1)
	s.world.Attach() <- world.AttachRequest{
		ClientName: hello.ClientName,
		Out:        out,
		Resp:       respCh,
	}
	resp := <-respCh

	// Welcome and keyframe go out before the writer goroutine starts, so
	// they precede any frame already queued on out.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	if err := writeJSON(conn, resp.Keyframe); err != nil {
		return "", nil
	}
	return resp.SessionID, out
}

func (s *Server) send(ctx context.Context, out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func refuse(reqID, code, message string, tick uint64) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        false,
		Code:            code,
		Message:         message,
		ServerTick:      tick,
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// tokenBucket is a minimal per-session limiter: burst capacity plus a
// steady refill rate.
type tokenBucket struct {
	tokens float64
	max    float64
	refill float64
	last   time.Time
}

func newTokenBucket(burst, perSecond float64) *tokenBucket {
	return &tokenBucket{tokens: burst, max: burst, refill: perSecond, last: time.Now()}
}

func (b *tokenBucket) allow() bool {
	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.refill
	b.last = now
	if b.tokens > b.max {
		b.tokens = b.max
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
