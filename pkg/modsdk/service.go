// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package modsdk

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service a mod exposes. The service has a single
// unary method, OnStart(google.protobuf.StringValue) returns
// (google.protobuf.Empty), where the string is the mod directory.
const ServiceName = "modhost.mod.v1.Mod"

const onStartMethod = "/" + ServiceName + "/OnStart"

// modServer is the server-side contract of ServiceName.
type modServer interface {
	OnStart(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*modServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OnStart", Handler: onStartHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "modhost/mod/v1/mod.proto",
}

func onStartHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(modServer).OnStart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: onStartMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(modServer).OnStart(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// server adapts a mod implementation to modServer.
type server struct {
	impl any
}

func (s *server) OnStart(ctx context.Context, in *wrapperspb.StringValue) (_ *emptypb.Empty, err error) {
	starter, ok := s.impl.(Starter)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "mod does not implement OnStart")
	}

	defer func() {
		if r := recover(); r != nil {
			err = status.Error(codes.Internal, fmt.Sprintf("OnStart panicked: %v", r))
		}
	}()

	if err := starter.OnStart(ctx, Env{Dir: in.GetValue()}); err != nil {
		return nil, status.Error(codes.Unknown, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Client calls a mod from the host.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection to a mod process.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// OnStart invokes the mod's entry point. A mod without one answers with
// codes.Unimplemented; see IsNoEntryPoint.
func (c *Client) OnStart(ctx context.Context, env Env, opts ...grpc.CallOption) error {
	out := new(emptypb.Empty)
	return c.cc.Invoke(ctx, onStartMethod, wrapperspb.String(env.Dir), out, opts...)
}

// IsNoEntryPoint reports whether err means the mod has no OnStart.
func IsNoEntryPoint(err error) bool {
	return status.Code(err) == codes.Unimplemented
}
