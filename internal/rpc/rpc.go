// Package rpc defines the heron.agent.v1.StatusService gRPC service:
// the transport surface through which executors deliver status updates
// and the master delivers framework acknowledgements.
//
// The service descriptor and stubs are written by hand against the
// wire codec in internal/wire; generated bindings are not checked in.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "heron.agent.v1.StatusService"

const (
	methodSendUpdate  = "/" + ServiceName + "/SendUpdate"
	methodAcknowledge = "/" + ServiceName + "/Acknowledge"
)

// StatusServiceClient is the client API for the status service.
type StatusServiceClient interface {
	SendUpdate(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*UpdateResponse, error)
	Acknowledge(ctx context.Context, in *AckRequest, opts ...grpc.CallOption) (*AckResponse, error)
}

type statusServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStatusServiceClient creates a client over cc. Calls select the
// package's codec by content-subtype.
func NewStatusServiceClient(cc grpc.ClientConnInterface) StatusServiceClient {
	return &statusServiceClient{cc: cc}
}

func (c *statusServiceClient) SendUpdate(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*UpdateResponse, error) {
	out := new(UpdateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodSendUpdate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *statusServiceClient) Acknowledge(ctx context.Context, in *AckRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	out := new(AckResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodAcknowledge, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusServiceServer is the server API for the status service.
type StatusServiceServer interface {
	SendUpdate(ctx context.Context, in *UpdateRequest) (*UpdateResponse, error)
	Acknowledge(ctx context.Context, in *AckRequest) (*AckResponse, error)
}

// RegisterStatusServiceServer registers srv with s.
func RegisterStatusServiceServer(s grpc.ServiceRegistrar, srv StatusServiceServer) {
	s.RegisterService(&statusServiceDesc, srv)
}

func _StatusService_SendUpdate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpdateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).SendUpdate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendUpdate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).SendUpdate(ctx, req.(*UpdateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StatusService_Acknowledge_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServiceServer).Acknowledge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAcknowledge}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServiceServer).Acknowledge(ctx, req.(*AckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendUpdate",
			Handler:    _StatusService_SendUpdate_Handler,
		},
		{
			MethodName: "Acknowledge",
			Handler:    _StatusService_Acknowledge_Handler,
		},
	},
	Streams: []grpc.StreamDesc{},
}
