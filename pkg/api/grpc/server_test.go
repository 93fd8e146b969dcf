package grpcapi

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
	"github.com/lemonberrylabs/selector-engine/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const page = `<html><body>
<ul><li>one</li><li data-testid="second">two</li></ul>
<div id="host"><template shadowrootmode="open"><b>inside</b></template></div>
</body></html>`

func startTestServer(t *testing.T) *Client {
	t.Helper()
	s := store.New(nil)
	_, err := s.Create("page", page)
	require.NoError(t, err)
	engine, err := runtime.NewEngine(nil, nil)
	require.NoError(t, err)
	srv := New(s, engine, nil)

	lis := bufconn.Listen(1 << 20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ServeListener(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		<-done
	})
	return NewClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()

	resp, err := client.Parse(ctx, mustStruct(t, map[string]any{"selector": "ul >> text=two"}))
	require.NoError(t, err)
	fields := resp.AsMap()
	assert.Equal(t, float64(1), fields["capture"])
	assert.Len(t, fields["parts"], 2)

	_, err = client.Parse(ctx, mustStruct(t, map[string]any{"selector": "nope=1"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Parse(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTokenize(t *testing.T) {
	client := startTestServer(t)
	resp, err := client.Tokenize(context.Background(), mustStruct(t, map[string]any{"input": "#a.b"}))
	require.NoError(t, err)
	assert.Len(t, resp.AsMap()["tokens"], 3)
}

func TestQuery(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()

	resp, err := client.Query(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "b"}))
	require.NoError(t, err)
	elements := resp.AsMap()["elements"].([]any)
	require.Len(t, elements, 1)
	assert.Equal(t, "inside", elements[0].(map[string]any)["text"])

	resp, err = client.Query(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "b", "light": true}))
	require.NoError(t, err)
	assert.Empty(t, resp.AsMap()["elements"])

	_, err = client.Query(ctx, mustStruct(t, map[string]any{"document": "missing", "selector": "b"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Query(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "li", "root": 1.5}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGenerate(t *testing.T) {
	client := startTestServer(t)
	ctx := context.Background()

	resp, err := client.Generate(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "li >> nth=1"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Nil(t, resp)

	resp, err = client.Generate(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "text=two"}))
	require.NoError(t, err)
	assert.Equal(t, `[data-testid="second"]`, resp.AsMap()["selector"])

	resp, err = client.Generate(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "b"}))
	require.NoError(t, err)
	assert.Equal(t, "text=inside", resp.AsMap()["selector"])

	_, err = client.Generate(ctx, mustStruct(t, map[string]any{"document": "page", "handle": 9999}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Generate(ctx, mustStruct(t, map[string]any{"document": "page", "selector": "table"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}
