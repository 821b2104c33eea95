// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Transport carries EmbeddingRequest/EmbeddingResponse over gRPC so an
// out-of-process embedding service can be registered as a Service without
// the caller knowing whether the backend is local (tests) or remote
// (production, over the wire with protobuf-encoded messages).
package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCTransport dials a remote embedding service and exposes it as a
// Service capability record.
type GRPCTransport struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target and returns a transport ready to be adapted
// into a Service via AsService.
func DialGRPC(ctx context.Context, target string) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &GRPCTransport{conn: conn}, nil
}

// Close releases the underlying connection.
func (t *GRPCTransport) Close() error { return t.conn.Close() }

// EmbedFunc is the shape a generated gRPC client stub's unary call takes;
// callers supply it so this package does not depend on a specific .proto
// service definition.
type EmbedFunc func(ctx context.Context, conn *grpc.ClientConn, req EmbeddingRequest) (EmbeddingResponse, error)

// AsService adapts this transport into a Service, with embed performing the
// actual unary RPC and load reporting the caller's own in-flight count.
func (t *GRPCTransport) AsService(id ServiceID, embed EmbedFunc, load func() int) Service {
	return Service{
		ID: id,
		Embed: func(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
			return embed(ctx, t.conn, req)
		},
		Load: load,
	}
}
