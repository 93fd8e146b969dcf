// Package grpcapi implements the selectors.v1.Selectors gRPC service. Messages
// are google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API, so no generated code is needed.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/selector-engine/pkg/generator"
	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
	"github.com/lemonberrylabs/selector-engine/pkg/store"
	"github.com/lemonberrylabs/selector-engine/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "selectors.v1.Selectors"

// SelectorsServer is the server API of the Selectors service.
type SelectorsServer interface {
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Tokenize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Generate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SelectorsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SelectorsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SelectorsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Selectors service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SelectorsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Parse", SelectorsServer.Parse),
		unary("Tokenize", SelectorsServer.Tokenize),
		unary("Query", SelectorsServer.Query),
		unary("Generate", SelectorsServer.Generate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "selectors/v1/selectors.proto",
}

// Server implements the Selectors service over a document store.
type Server struct {
	store  *store.Store
	engine *runtime.Engine
	logger *zap.Logger
	grpc   *grpc.Server
}

// New creates a new gRPC server.
func New(s *store.Store, engine *runtime.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:  s,
		engine: engine,
		logger: logger,
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logRequests))
	gs.RegisterService(&ServiceDesc, srv)
	srv.grpc = gs
	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// ServeListener serves gRPC requests on lis.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc request",
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("code", status.Code(err).String()))
	return resp, err
}

// --- Selectors Service ---

func (s *Server) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sel, err := requiredString(req, "selector")
	if err != nil {
		return nil, err
	}
	parsed, err := s.engine.ParseSelector(sel)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(runtime.ViewParsed(parsed))
}

func (s *Server) Tokenize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tokens, err := s.engine.Tokenize(req.GetFields()["input"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"tokens": runtime.ViewTokens(tokens)})
}

func (s *Server) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d, err := s.document(req)
	if err != nil {
		return nil, err
	}
	sel, err := requiredString(req, "selector")
	if err != nil {
		return nil, err
	}
	opts := runtime.QueryOptions{Light: req.GetFields()["light"].GetBoolValue()}
	if _, ok := req.GetFields()["root"]; ok {
		if opts.Root, err = element(d, req, "root"); err != nil {
			return nil, err
		}
	}

	nodes, err := s.engine.QuerySelectorAll(d.Doc, sel, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{
		"selector": sel,
		"elements": runtime.DescribeAll(d.Doc, nodes),
	})
}

func (s *Server) Generate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d, err := s.document(req)
	if err != nil {
		return nil, err
	}

	var target *html.Node
	fields := req.GetFields()
	switch {
	case fields["handle"] != nil:
		if target, err = element(d, req, "handle"); err != nil {
			return nil, err
		}
	case fields["selector"].GetStringValue() != "":
		sel := fields["selector"].GetStringValue()
		if target, err = s.engine.QuerySelector(d.Doc, sel, runtime.QueryOptions{}); err != nil {
			return nil, toStatus(err)
		}
		if target == nil {
			return nil, status.Errorf(codes.NotFound, "no element matches %q", sel)
		}
	default:
		return nil, status.Error(codes.InvalidArgument, "handle or selector is required")
	}

	res, err := s.engine.GenerateSelector(d.Doc, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{
		"selector": res.Selector,
		"elements": runtime.DescribeAll(d.Doc, res.Elements),
	})
}

// --- Helpers ---

func (s *Server) document(req *structpb.Struct) (*store.Document, error) {
	name, err := requiredString(req, "document")
	if err != nil {
		return nil, err
	}
	d, err := s.store.Get(name)
	if err != nil {
		return nil, toStatus(err)
	}
	return d, nil
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := req.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func element(d *store.Document, req *structpb.Struct, key string) (*html.Node, error) {
	v, ok := req.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	handle := int(v.NumberValue)
	if float64(handle) != v.NumberValue {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	el := d.Doc.ElementAt(handle)
	if el == nil {
		return nil, status.Errorf(codes.InvalidArgument, "element handle %d out of range [0, %d)", handle, d.Elements)
	}
	return el, nil
}

func toStatus(err error) error {
	var se *types.SelectorError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &se), errors.Is(err, generator.ErrForeignElement):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal response: %v", err)
	}
	return out, nil
}

// Client is a thin client for the Selectors service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Parse", in, opts...)
}

func (c *Client) Tokenize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Tokenize", in, opts...)
}

func (c *Client) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Query", in, opts...)
}

func (c *Client) Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Generate", in, opts...)
}
