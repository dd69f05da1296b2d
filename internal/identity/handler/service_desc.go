package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tenantidentity.auth.v1.AuthService"

// AuthServiceServer is the server API for AuthService. Requests and responses are google.protobuf.Struct
// objects with camelCase keys.
type AuthServiceServer interface {
	RequestTicket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoginWithCompany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompletePasswordReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeUserSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AuthServiceDesc is the grpc.ServiceDesc for AuthService.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RequestTicket", AuthServiceServer.RequestTicket),
		unary("LoginWithCompany", AuthServiceServer.LoginWithCompany),
		unary("Refresh", AuthServiceServer.Refresh),
		unary("Logout", AuthServiceServer.Logout),
		unary("RequestPasswordReset", AuthServiceServer.RequestPasswordReset),
		unary("CompletePasswordReset", AuthServiceServer.CompletePasswordReset),
		unary("RevokeUserSessions", AuthServiceServer.RevokeUserSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tenantidentity/auth/v1/auth.proto",
}

// RegisterAuthServiceServer registers srv with s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

// FullMethod returns the full method name of an AuthService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type structCall func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
