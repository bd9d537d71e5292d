package detection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justestif/go-moodtunes/internal/capture"
)

const (
	opStatus = "status"
	opDetect = "detect"
)

// DefaultSidecarTimeout bounds one round trip to the model process.
const DefaultSidecarTimeout = 2 * time.Second

// sidecarRequest is sent to the model process.
type sidecarRequest struct {
	Op          string `msgpack:"op"`
	ContentType string `msgpack:"fmt,omitempty"`
	Data        []byte `msgpack:"d,omitempty"`
}

// sidecarFace is one face as encoded by the model process.
type sidecarFace struct {
	X           float32            `msgpack:"x"`
	Y           float32            `msgpack:"y"`
	Width       float32            `msgpack:"w"`
	Height      float32            `msgpack:"h"`
	Confidence  float32            `msgpack:"c"`
	Expressions map[string]float32 `msgpack:"e"`
	Age         float32            `msgpack:"age"`
	Gender      string             `msgpack:"g"`
	GenderProb  float32            `msgpack:"gp"`
}

// sidecarResponse is received from the model process.
type sidecarResponse struct {
	Ready       bool          `msgpack:"ready"`
	Loading     bool          `msgpack:"loading"`
	Error       string        `msgpack:"error"`
	Faces       []sidecarFace `msgpack:"faces"`
	InferenceMs float32       `msgpack:"inference_ms"`
}

// Status is the model process load state.
type Status struct {
	Ready   bool
	Loading bool
	Error   string
}

// SidecarClient talks to the expression model process over a Unix socket,
// one msgpack request and response per connection.
type SidecarClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSidecarClient creates a client for the socket at socketPath.
func NewSidecarClient(socketPath string, timeout time.Duration) *SidecarClient {
	if timeout <= 0 {
		timeout = DefaultSidecarTimeout
	}
	return &SidecarClient{socketPath: socketPath, timeout: timeout}
}

// Status asks the model process whether its assets are loaded.
func (c *SidecarClient) Status(ctx context.Context) (Status, error) {
	resp, err := c.roundTrip(ctx, sidecarRequest{Op: opStatus})
	if err != nil {
		return Status{}, err
	}
	return Status{Ready: resp.Ready, Loading: resp.Loading, Error: resp.Error}, nil
}

// Infer runs expression inference on frame.
func (c *SidecarClient) Infer(ctx context.Context, frame capture.Frame) ([]Face, error) {
	resp, err := c.roundTrip(ctx, sidecarRequest{
		Op:          opDetect,
		ContentType: frame.ContentType,
		Data:        frame.Data,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("model process: %s", resp.Error)
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		expr := make(map[string]float64, len(f.Expressions))
		for k, v := range f.Expressions {
			expr[k] = float64(v)
		}
		faces = append(faces, Face{
			Box: Box{
				X:      float64(f.X),
				Y:      float64(f.Y),
				Width:  float64(f.Width),
				Height: float64(f.Height),
			},
			Score:             float64(f.Confidence),
			Expressions:       expr,
			Age:               float64(f.Age),
			Gender:            f.Gender,
			GenderProbability: float64(f.GenderProb),
		})
	}
	return faces, nil
}

func (c *SidecarClient) roundTrip(ctx context.Context, req sidecarRequest) (*sidecarResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to model process: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("setting deadline: %w", err)
		}
	}

	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", req.Op, err)
	}

	var resp sidecarResponse
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for %s response: %w", req.Op, ctx.Err())
		}
		return nil, fmt.Errorf("decoding %s response: %w", req.Op, err)
	}
	return &resp, nil
}
