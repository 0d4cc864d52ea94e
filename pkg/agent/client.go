package agent

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kunal/simd-stress/pkg/config"
)

// Client calls a remote agent.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. Transport security is off unless opts
// say otherwise.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to agent %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Run executes cfg on the agent and waits for the results. The context
// deadline should cover the duration plus the grace period.
func (c *Client) Run(ctx context.Context, cfg config.WorkloadConfig) (Report, error) {
	req, err := EncodeConfig(cfg)
	if err != nil {
		return Report{}, fmt.Errorf("encode request: %w", err)
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunMethod, req, reply); err != nil {
		return Report{}, err
	}
	return DecodeReport(reply)
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }
