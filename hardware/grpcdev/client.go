package grpcdev

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/model"
)

// Client is a hardware.Device served by a remote Device service.
type Client struct {
	conn grpc.ClientConnInterface
}

var _ hardware.Device = (*Client)(nil)

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to a Device service at target over plaintext. Close the
// returned connection when done.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial device %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, FromStatusError(err)
	}
	return out, nil
}

func (c *Client) Move(ctx context.Context, axis hardware.Axis, value float64, movement model.Movement) (float64, error) {
	out, err := c.invoke(ctx, methodMove, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldAxis:     structpb.NewStringValue(string(axis)),
		fieldValue:    structpb.NewNumberValue(value),
		fieldMovement: structpb.NewStringValue(movement.String()),
	}})
	if err != nil {
		return 0, err
	}
	return number(out, fieldPosition)
}

func (c *Client) Position(ctx context.Context, axis hardware.Axis) (float64, error) {
	out, err := c.invoke(ctx, methodPosition, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldAxis: structpb.NewStringValue(string(axis)),
	}})
	if err != nil {
		return 0, err
	}
	return number(out, fieldPosition)
}

func (c *Client) Acquire(ctx context.Context) (beam.PhotonBeam, error) {
	out, err := c.invoke(ctx, methodAcquire, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return decodeBeam(out)
}

func (c *Client) Scan(ctx context.Context, dir model.Direction) (beam.Scan, error) {
	out, err := c.invoke(ctx, methodScan, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldDirection: structpb.NewStringValue(dir.String()),
	}})
	if err != nil {
		return beam.Scan{}, err
	}
	return decodeScan(out)
}

func (c *Client) Implementor(ctx context.Context) (model.Implementor, error) {
	out, err := c.invoke(ctx, methodImplementor, &structpb.Struct{})
	if err != nil {
		return 0, err
	}
	name, err := text(out, fieldImplementor)
	if err != nil {
		return 0, err
	}
	return model.ParseImplementor(name)
}
