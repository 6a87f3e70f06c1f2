package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const runMethod = "/bizpilot.engine.ReasoningEngine/Run"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEngineEvent              = errors.New("engine returned error event")
)

// runStreamDesc describes the server-streaming Run RPC. The engine speaks
// JSON-encoded frames, so no generated stubs are involved.
var runStreamDesc = &grpc.StreamDesc{
	StreamName:    "Run",
	ServerStreams: true,
}

// wireEvent is the frame shape the engine streams back for Run.
type wireEvent struct {
	Type         string `json:"type"` // "step" | "complete" | "error"
	Step         string `json:"step,omitempty"`
	NeedsHuman   bool   `json:"needs_human,omitempty"`
	Response     string `json:"response,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Final        *State `json:"final,omitempty"`
}

// GrpcClient provides a gRPC client to the reasoning engine service.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   120 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient creates a new gRPC client to the reasoning engine service.
func NewGrpcClient(addr string, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultGrpcClientConfig()
	if addr != "" {
		cfg.Address = addr
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reasoning engine at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("reasoning engine at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to reasoning engine", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Run executes one turn against the engine with server streaming.
func (c *GrpcClient) Run(ctx context.Context, turn Turn) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		stream, err := c.conn.NewStream(ctx, runStreamDesc, runMethod)
		if err != nil {
			yield(nil, fmt.Errorf("engine run failed to start: %w", err))
			return
		}

		if err := stream.SendMsg(&turn); err != nil {
			yield(nil, fmt.Errorf("engine run send failed: %w", err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(nil, fmt.Errorf("engine run close-send failed: %w", err))
			return
		}

		for {
			var frame wireEvent
			err := stream.RecvMsg(&frame)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("engine stream error: %w", err))
				return
			}

			if frame.Type == "error" {
				if frame.ErrorMessage == "" {
					yield(nil, errEngineEvent)
					return
				}
				yield(nil, fmt.Errorf("%w: %s", errEngineEvent, frame.ErrorMessage))
				return
			}

			event := &Event{
				Step:         frame.Step,
				NeedsHuman:   frame.NeedsHuman,
				Response:     frame.Response,
				ErrorMessage: frame.ErrorMessage,
				Final:        frame.Final,
			}
			if !yield(event, nil) {
				return
			}
			if event.Final != nil {
				return
			}
		}
	}
}
