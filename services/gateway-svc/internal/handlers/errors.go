package handlers

import (
	"connectrpc.com/connect"
	"google.golang.org/grpc/status"
)

// asConnectError maps a backend gRPC error onto the equivalent Connect
// error so the machine code survives the edge unchanged.
func asConnectError(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return connect.NewError(connect.Code(st.Code()), st.Err())
	}
	return connect.NewError(connect.CodeInternal, err)
}
