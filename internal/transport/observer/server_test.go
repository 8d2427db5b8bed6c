package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gardensim.ai/internal/flowergen"
	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/catalogs"
	"gardensim.ai/internal/sim/tuning"
	"gardensim.ai/internal/sim/world"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.GridWidth, tune.GridHeight = 8, 8
	tune.InitialFlowers = 3
	tune.InitialPopulation = nil
	tune.AntColonies, tune.Hives = 0, 0
	tune.Climate.EventChance = 0

	w, err := world.New(world.WorldConfig{ID: "bootstrap-test", Tune: tune, SyncFactory: true}, cats, flowergen.NewLocal())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w).BootstrapHandler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func TestBootstrapReturnsWelcomeAndKeyframe(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Welcome.Type != protocol.TypeWelcome || body.Welcome.WorldParams.GridWidth != 8 {
		t.Fatalf("welcome payload %+v", body.Welcome)
	}
	if body.Keyframe.Type != protocol.TypeFrame {
		t.Fatalf("keyframe type %q", body.Keyframe.Type)
	}
	if body.Keyframe.Summary["FLOWER"] != 3 {
		t.Fatalf("keyframe summary %+v", body.Keyframe.Summary)
	}
	for i, d := range body.Keyframe.Deltas {
		if d.Op != protocol.OpAdd || d.Actor == nil {
			t.Fatalf("keyframe delta %d: %+v", i, d)
		}
	}
}

func TestBootstrapRejectsNonGet(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", resp.StatusCode)
	}
}
