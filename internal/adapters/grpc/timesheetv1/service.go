// Package timesheetv1 は timesheet.v1.TimesheetService の gRPC サービス定義です。
// メッセージはすべて google.protobuf.Struct で表現します。
package timesheetv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName は gRPC のフルサービス名です。
const ServiceName = "timesheet.v1.TimesheetService"

// メソッド名です。
const (
	MethodListEmployees  = "ListEmployees"
	MethodUpsertEmployee = "UpsertEmployee"
	MethodDeleteEmployee = "DeleteEmployee"
	MethodListTaskTypes  = "ListTaskTypes"
	MethodUpsertTaskType = "UpsertTaskType"
	MethodListTasks      = "ListTasks"
	MethodListCustomers  = "ListCustomers"
	MethodStartTask      = "StartTask"
	MethodFinishTask     = "FinishTask"
	MethodCancelTask     = "CancelTask"
	MethodDeleteTask     = "DeleteTask"
	MethodGetReport      = "GetReport"
	MethodRefresh        = "Refresh"
	MethodCheckTables    = "CheckTables"
	MethodSyncTable      = "SyncTable"
)

// TimesheetServiceServer はサーバー側の実装インターフェースです。
type TimesheetServiceServer interface {
	ListEmployees(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertEmployee(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteEmployee(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTaskTypes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertTaskType(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCustomers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FinishTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckTables(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncTable(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod struct {
	name string
	call func(TimesheetServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var unaryMethods = []unaryMethod{
	{MethodListEmployees, TimesheetServiceServer.ListEmployees},
	{MethodUpsertEmployee, TimesheetServiceServer.UpsertEmployee},
	{MethodDeleteEmployee, TimesheetServiceServer.DeleteEmployee},
	{MethodListTaskTypes, TimesheetServiceServer.ListTaskTypes},
	{MethodUpsertTaskType, TimesheetServiceServer.UpsertTaskType},
	{MethodListTasks, TimesheetServiceServer.ListTasks},
	{MethodListCustomers, TimesheetServiceServer.ListCustomers},
	{MethodStartTask, TimesheetServiceServer.StartTask},
	{MethodFinishTask, TimesheetServiceServer.FinishTask},
	{MethodCancelTask, TimesheetServiceServer.CancelTask},
	{MethodDeleteTask, TimesheetServiceServer.DeleteTask},
	{MethodGetReport, TimesheetServiceServer.GetReport},
	{MethodRefresh, TimesheetServiceServer.Refresh},
	{MethodCheckTables, TimesheetServiceServer.CheckTables},
	{MethodSyncTable, TimesheetServiceServer.SyncTable},
}

// FullMethod は "/timesheet.v1.TimesheetService/Method" 形式の名前を返します。
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc は grpc.ServiceRegistrar へ登録するためのサービス定義を返します。
func ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*TimesheetServiceServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "timesheet/v1/timesheet.proto",
	}
	for _, m := range unaryMethods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    unaryHandler(m),
		})
	}
	return desc
}

// RegisterTimesheetServiceServer はサーバー実装を登録します。
func RegisterTimesheetServiceServer(s grpc.ServiceRegistrar, srv TimesheetServiceServer) {
	s.RegisterService(ServiceDesc(), srv)
}

func unaryHandler(m unaryMethod) grpc.MethodHandler {
	fullMethod := FullMethod(m.name)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m.call(srv.(TimesheetServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m.call(srv.(TimesheetServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client は TimesheetService を呼び出すクライアントです。
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient は Client を生成します。
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call は指定メソッドを呼び出します。in が nil の場合は空の Struct を送ります。
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
