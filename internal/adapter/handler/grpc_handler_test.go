package handler

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/shop-cart/internal/adapter/storage"
	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/pricing"
	"github.com/rl1809/shop-cart/internal/core/service"
)

func newGRPCClient(t *testing.T) *grpc.ClientConn {
	t.Helper()
	catalog := storage.NewMemoryCatalog()
	ctx := context.Background()
	require.NoError(t, catalog.SaveProduct(ctx, domain.Product{
		ID: "jacket", Name: "Jacket", BasePrice: decimal.NewFromInt(100), AggregateStock: 4, IsActive: true,
		Discount: &domain.Discount{Percentage: decimal.NewFromInt(20)},
	}))

	logger := zap.NewNop()
	carts := service.NewCartService(storage.NewMemoryCartStore(), catalog,
		service.NewAggregator(catalog, pricing.DefaultShipping(), 4), logger)
	srv, _ := NewGRPCServer(NewGRPCHandler(carts, logger), logger)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, user, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)

	ctx := context.Background()
	if user != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, userIDMetadata, user)
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+CartServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPC_CartFlow(t *testing.T) {
	conn := newGRPCClient(t)

	out, err := invoke(t, conn, "alice", "AddToCart", map[string]any{"productId": "jacket", "quantity": 2})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.GetFields()["cartItemCount"].GetNumberValue())

	out, err = invoke(t, conn, "alice", "GetCart", nil)
	require.NoError(t, err)
	summary := out.GetFields()["summary"].GetStructValue().AsMap()
	assert.Equal(t, "160.00", summary["total"])
	assert.Equal(t, "0.00", summary["shipping"])

	items := out.GetFields()["items"].GetListValue().GetValues()
	require.Len(t, items, 1)
	itemID := items[0].GetStructValue().GetFields()["id"].GetStringValue()

	_, err = invoke(t, conn, "alice", "UpdateCartItem", map[string]any{"itemId": itemID, "quantity": 3})
	require.NoError(t, err)

	out, err = invoke(t, conn, "alice", "GetCartCount", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.GetFields()["count"].GetNumberValue())

	_, err = invoke(t, conn, "alice", "RemoveCartItem", map[string]any{"itemId": itemID})
	require.NoError(t, err)
	_, err = invoke(t, conn, "alice", "ClearCart", nil)
	require.NoError(t, err)

	out, err = invoke(t, conn, "alice", "GetCartCount", nil)
	require.NoError(t, err)
	assert.Zero(t, out.GetFields()["count"].GetNumberValue())
}

func TestGRPC_ErrorCodes(t *testing.T) {
	conn := newGRPCClient(t)

	_, err := invoke(t, conn, "", "GetCart", nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = invoke(t, conn, "bob", "AddToCart", map[string]any{"productId": "ghost"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, "bob", "AddToCart", map[string]any{"productId": "jacket", "quantity": -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "bob", "UpdateCartItem", map[string]any{"itemId": "nope", "quantity": 1})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, "bob", "UpdateCartItem", map[string]any{"itemId": "nope"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_RejectsNonIntegerQuantity(t *testing.T) {
	conn := newGRPCClient(t)

	for _, qty := range []any{1.7, -0.5, "2", 1e12} {
		_, err := invoke(t, conn, "carol", "AddToCart", map[string]any{"productId": "jacket", "quantity": qty})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "quantity %v", qty)
	}

	out, err := invoke(t, conn, "carol", "AddToCart", map[string]any{"productId": "jacket", "quantity": 2.0})
	require.NoError(t, err, "whole float is accepted")
	assert.Equal(t, float64(2), out.GetFields()["cartItemCount"].GetNumberValue())

	items, err := invoke(t, conn, "carol", "GetCart", nil)
	require.NoError(t, err)
	itemID := items.GetFields()["items"].GetListValue().GetValues()[0].GetStructValue().GetFields()["id"].GetStringValue()

	_, err = invoke(t, conn, "carol", "UpdateCartItem", map[string]any{"itemId": itemID, "quantity": 1.5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	out, err = invoke(t, conn, "carol", "GetCartCount", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.GetFields()["count"].GetNumberValue(), "rejected update changes nothing")
}

func TestGRPC_Health(t *testing.T) {
	conn := newGRPCClient(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: CartServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
