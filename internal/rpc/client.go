package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region types
// CutResult is one cut's aggregated outcome for an evaluated record.
type CutResult struct {
	Name   string
	Pass   bool
	Weight float64
}

// #endregion types

// #region client-struct
// Client calls a remote evaluation service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to the evaluation service at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion client-struct

// #region evaluate
// Evaluate sends one record for evaluation under syst ("" for nominal).
func (c *Client) Evaluate(ctx context.Context, rec map[string]any, syst string) ([]CutResult, error) {
	recPB, err := structpb.NewStruct(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"record": structpb.NewStructValue(recPB),
		"syst":   structpb.NewStringValue(syst),
	}}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, evaluateMethod, req, resp); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	var out []CutResult
	for _, v := range resp.GetFields()["cuts"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		out = append(out, CutResult{
			Name:   f["name"].GetStringValue(),
			Pass:   f["pass"].GetBoolValue(),
			Weight: f["weight"].GetNumberValue(),
		})
	}
	return out, nil
}

// #endregion evaluate
