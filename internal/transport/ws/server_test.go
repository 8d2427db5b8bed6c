package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/genetics"
	"gardensim.ai/internal/sim/tuning"
	"gardensim.ai/internal/sim/world"
)

func startTestServer(t *testing.T, bank SeedResolver) (*httptest.Server, *world.World) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.GridWidth, tune.GridHeight = 8, 8
	tune.InitialFlowers = 0
	tune.InitialPopulation = nil
	tune.AntColonies, tune.Hives = 0, 0
	tune.Climate.EventChance = 0

	w, err := world.New(world.WorldConfig{ID: "ws-test", Tune: tune, SyncFactory: true}, cats, flowergen.NewLocal())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, bank, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", msgType, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s before deadline", msgType)
	return nil
}

func sendHello(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "itest",
		Capabilities:    protocol.HelloCapabilities{EventCursor: true, MaxQueue: 32},
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

func TestHandshakeDeliversWelcomeKeyframeAndFrames(t *testing.T) {
	srv, _ := startTestServer(t, nil)
	conn := dial(t, srv)
	sendHello(t, conn)

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.SessionID == "" || welcome.WorldParams.GridWidth != 8 {
		t.Fatalf("welcome payload %+v", welcome)
	}

	var keyframe protocol.FrameMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeFrame), &keyframe); err != nil {
		t.Fatalf("keyframe: %v", err)
	}
	if keyframe.Tick != welcome.Tick {
		t.Fatalf("keyframe tick %d, welcome said %d", keyframe.Tick, welcome.Tick)
	}

	var frame protocol.FrameMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeFrame), &frame); err != nil {
		t.Fatalf("live frame: %v", err)
	}
	if frame.Tick < keyframe.Tick {
		t.Fatalf("live frame tick %d went backwards from %d", frame.Tick, keyframe.Tick)
	}
}

func TestHandshakeRejectsWrongVersion(t *testing.T) {
	srv, _ := startTestServer(t, nil)
	conn := dial(t, srv)

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.9", ClientName: "old"}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy-violation close, got %v", err)
	}
}

func TestControlRoundTrip(t *testing.T) {
	srv, _ := startTestServer(t, nil)
	conn := dial(t, srv)
	sendHello(t, conn)
	readUntil(t, conn, protocol.TypeWelcome)

	ctl := protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: "c1", Command: protocol.CmdPause}
	if err := conn.WriteJSON(ctl); err != nil {
		t.Fatalf("write control: %v", err)
	}

	var ack protocol.AckMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !ack.Accepted || ack.AckFor != "c1" {
		t.Fatalf("pause refused: %+v", ack)
	}
}

type staticBank struct{}

func (staticBank) Resolve(id int64) (genetics.Genome, bool, error) {
	if id == 42 {
		return genetics.Genome{0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9}, true, nil
	}
	return genetics.Genome{}, false, nil
}

func TestPlantResolvesBankGenome(t *testing.T) {
	srv, _ := startTestServer(t, staticBank{})
	conn := dial(t, srv)
	sendHello(t, conn)
	readUntil(t, conn, protocol.TypeWelcome)

	plant := func(reqID string, bankID int64) protocol.AckMsg {
		ctl := protocol.ControlMsg{
			Type: protocol.TypeControl, ProtocolVersion: protocol.Version,
			ReqID: reqID, Command: protocol.CmdPlant,
			Plant: &protocol.PlantCmd{Cell: [2]int{2, 2}, BankID: bankID},
		}
		if err := conn.WriteJSON(ctl); err != nil {
			t.Fatalf("write plant: %v", err)
		}
		var ack protocol.AckMsg
		for {
			if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
				t.Fatalf("ack: %v", err)
			}
			if ack.AckFor == reqID {
				return ack
			}
		}
	}

	if ack := plant("p1", 999); ack.Accepted || ack.Code != protocol.ErrBankNotFound {
		t.Fatalf("unknown bank id not refused: %+v", ack)
	}
	if ack := plant("p2", 42); !ack.Accepted {
		t.Fatalf("banked plant refused: %+v", ack)
	}
}

func TestControlRateLimited(t *testing.T) {
	srv, _ := startTestServer(t, nil)
	conn := dial(t, srv)
	sendHello(t, conn)
	readUntil(t, conn, protocol.TypeWelcome)

	for i := 0; i < 14; i++ {
		ctl := protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, ReqID: "r", Command: protocol.CmdPause}
		if err := conn.WriteJSON(ctl); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	limited := false
	for i := 0; i < 14 && !limited; i++ {
		var ack protocol.AckMsg
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeAck), &ack); err != nil {
			t.Fatalf("ack: %v", err)
		}
		limited = ack.Code == protocol.ErrRateLimit
	}
	if !limited {
		t.Fatalf("burst of 14 commands never hit the limiter")
	}
}
