// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package modsdk is the SDK for native mods built as out-of-process
// executables (.plugin).
//
// A mod is a main package that calls Serve. Implementing Starter is
// optional; a mod without it loads fine and simply has no entry point.
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/gridforge/modhost/pkg/modsdk"
//	)
//
//	type foo struct{}
//
//	func (foo) OnStart(ctx context.Context, env modsdk.Env) error {
//		return nil
//	}
//
//	func main() {
//		modsdk.Serve(foo{})
//	}
package modsdk

import (
	"context"
	"fmt"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
)

// PluginName is the name the host dispenses.
const PluginName = "mod"

// HandshakeConfig is shared by the host and every mod. A mismatch makes the
// host refuse the executable.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MODHOST_MOD",
	MagicCookieValue: "modhost-v1",
}

// Env is what the host tells a mod when it starts.
type Env struct {
	// Dir is the mod's package directory.
	Dir string
}

// Starter is implemented by mods with startup behavior. OnStart runs once,
// after every mod has been loaded.
type Starter interface {
	OnStart(ctx context.Context, env Env) error
}

// Serve runs the mod process. It blocks until the host disconnects.
// impl must be non-nil; it only gets an entry point if it implements
// Starter.
func Serve(impl any) {
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(impl),
		GRPCServer:      hashiplug.DefaultGRPCServer,
	})
}

// PluginMap returns the plugin set served for impl. The host uses
// PluginMap(nil).
func PluginMap(impl any) map[string]hashiplug.Plugin {
	return map[string]hashiplug.Plugin{
		PluginName: &GRPCPlugin{Impl: impl},
	}
}

// GRPCPlugin connects a mod implementation to go-plugin over gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is only used on the mod side.
	Impl any
}

// GRPCServer registers the mod service (mod process).
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return fmt.Errorf("modsdk: mod implementation is nil")
	}
	s.RegisterService(&serviceDesc, &server{impl: p.Impl})
	return nil
}

// GRPCClient returns a *Client (host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return NewClient(c), nil
}
