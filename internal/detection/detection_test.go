package detection

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justestif/go-moodtunes/internal/capture"
	"github.com/justestif/go-moodtunes/internal/errkind"
	"github.com/justestif/go-moodtunes/internal/logging"
)

func TestFaceTop(t *testing.T) {
	tests := []struct {
		name      string
		face      Face
		wantLabel string
		wantScore float64
	}{
		{
			name:      "clear winner",
			face:      Face{Expressions: map[string]float64{Happy: 0.9, Sad: 0.05}},
			wantLabel: Happy,
			wantScore: 0.9,
		},
		{
			name:      "tie resolves to canonical order",
			face:      Face{Expressions: map[string]float64{Neutral: 0.5, Sad: 0.5}},
			wantLabel: Sad,
			wantScore: 0.5,
		},
		{
			name:      "empty scores",
			face:      Face{},
			wantLabel: Happy,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, score := tt.face.Top()
			if label != tt.wantLabel || score != tt.wantScore {
				t.Errorf("Top() = (%q, %v), want (%q, %v)", label, score, tt.wantLabel, tt.wantScore)
			}
		})
	}
}

// fakeSidecar serves msgpack responses on a Unix socket.
type fakeSidecar struct {
	ready    atomic.Bool
	loadErr  string
	faces    []sidecarFace
	requests atomic.Int32
}

func startFakeSidecar(t *testing.T, s *fakeSidecar) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mt")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "m.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				var req sidecarRequest
				if err := msgpack.NewDecoder(c).Decode(&req); err != nil {
					return
				}
				s.requests.Add(1)
				resp := sidecarResponse{Ready: s.ready.Load(), Loading: !s.ready.Load(), Error: s.loadErr}
				if req.Op == opDetect {
					resp.Faces = s.faces
				}
				_ = msgpack.NewEncoder(c).Encode(&resp)
			}(conn)
		}
	}()
	return path
}

func TestSidecarClient(t *testing.T) {
	s := &fakeSidecar{
		faces: []sidecarFace{{
			X: 10, Y: 20, Width: 100, Height: 120, Confidence: 0.98,
			Expressions: map[string]float32{Happy: 0.75, Neutral: 0.25},
			Age:         31, Gender: "female", GenderProb: 0.9,
		}},
	}
	s.ready.Store(true)
	client := NewSidecarClient(startFakeSidecar(t, s), time.Second)

	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Ready {
		t.Errorf("Status().Ready = false, want true")
	}

	faces, err := client.Infer(context.Background(), capture.Frame{Data: []byte{1, 2, 3}, ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("Infer() returned %d faces, want 1", len(faces))
	}
	f := faces[0]
	if label, _ := f.Top(); label != Happy {
		t.Errorf("Top() = %q, want %q", label, Happy)
	}
	if f.Age != 31 || f.Gender != "female" || f.Box.Width != 100 {
		t.Errorf("face = %+v, want age 31, female, width 100", f)
	}
}

func TestSidecarClient_ConnectFailure(t *testing.T) {
	client := NewSidecarClient(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	if _, err := client.Status(context.Background()); err == nil {
		t.Error("Status() error = nil, want connection error")
	}
}

type fakeModel struct {
	status    atomic.Value // Status
	faces     []Face
	inferErr  error
	inferCall atomic.Int32
}

func newFakeModel(st Status) *fakeModel {
	m := &fakeModel{}
	m.status.Store(st)
	return m
}

func (m *fakeModel) Status(context.Context) (Status, error) {
	return m.status.Load().(Status), nil
}

func (m *fakeModel) Infer(context.Context, capture.Frame) ([]Face, error) {
	m.inferCall.Add(1)
	return m.faces, m.inferErr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAdapter_Readiness(t *testing.T) {
	model := newFakeModel(Status{Loading: true})
	a := NewAdapter(model, WithPollInterval(time.Millisecond), WithLogger(logging.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	_, err := a.Detect(ctx, capture.Frame{})
	if !errkind.Is(err, errkind.ModelNotReady) {
		t.Fatalf("Detect() before ready error = %v, want ModelNotReady", err)
	}
	if a.Ready() {
		t.Fatal("Ready() = true while loading")
	}

	model.status.Store(Status{Ready: true})
	waitFor(t, a.Ready)

	faces, err := a.Detect(ctx, capture.Frame{})
	if err != nil {
		t.Fatalf("Detect() after ready error = %v", err)
	}
	if faces == nil || len(faces) != 0 {
		t.Errorf("Detect() = %v, want empty non-nil slice", faces)
	}
}

func TestAdapter_LoadFailure(t *testing.T) {
	model := newFakeModel(Status{Error: "weights missing"})
	a := NewAdapter(model, WithPollInterval(time.Millisecond), WithLogger(logging.Discard()))
	a.Start(context.Background())

	waitFor(t, func() bool { return a.LoadErr() != nil })

	_, err := a.Detect(context.Background(), capture.Frame{})
	if !errkind.Is(err, errkind.ModelLoadFailure) {
		t.Errorf("Detect() error = %v, want ModelLoadFailure", err)
	}
	if errkind.Is(err, errkind.ModelNotReady) {
		t.Errorf("load failure must not look like not-ready")
	}
}

func TestAdapter_InferenceError(t *testing.T) {
	model := newFakeModel(Status{Ready: true})
	model.inferErr = errors.New("tensor shape mismatch")
	a := NewAdapter(model, WithPollInterval(time.Millisecond), WithLogger(logging.Discard()))
	a.Start(context.Background())
	waitFor(t, a.Ready)

	_, err := a.Detect(context.Background(), capture.Frame{})
	if !errors.Is(err, ErrInference) {
		t.Errorf("Detect() error = %v, want ErrInference", err)
	}
}

type stubPrefilter bool

func (s stubPrefilter) HasFace(capture.Frame) (bool, error) { return bool(s), nil }

func TestAdapter_PrefilterSkipsInference(t *testing.T) {
	model := newFakeModel(Status{Ready: true})
	model.faces = []Face{{Expressions: map[string]float64{Sad: 1}}}
	a := NewAdapter(model,
		WithPrefilter(stubPrefilter(false)),
		WithPollInterval(time.Millisecond),
		WithLogger(logging.Discard()),
	)
	a.Start(context.Background())
	waitFor(t, a.Ready)

	faces, err := a.Detect(context.Background(), capture.Frame{})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Detect() returned %d faces, want 0", len(faces))
	}
	if got := model.inferCall.Load(); got != 0 {
		t.Errorf("model inferred %d times, want 0", got)
	}
}
