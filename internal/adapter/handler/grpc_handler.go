package handler

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/service"
)

const (
	CartServiceName = "cart.v1.CartService"
	userIDMetadata  = "x-user-id"
)

// CartServer is the gRPC cart service. Requests and replies are generic structs.
type CartServer interface {
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddToCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCartCount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetCart", CartServer.GetCart),
		unaryMethod("AddToCart", CartServer.AddToCart),
		unaryMethod("UpdateCartItem", CartServer.UpdateCartItem),
		unaryMethod("RemoveCartItem", CartServer.RemoveCartItem),
		unaryMethod("ClearCart", CartServer.ClearCart),
		unaryMethod("GetCartCount", CartServer.GetCartCount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cart/v1/cart.proto",
}

func RegisterCartServer(s grpc.ServiceRegistrar, srv CartServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

func unaryMethod(name string, call func(CartServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CartServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + CartServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CartServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type GRPCHandler struct {
	carts  *service.CartService
	logger *zap.Logger
}

func NewGRPCHandler(carts *service.CartService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{carts: carts, logger: logger}
}

// NewGRPCServer builds a server exposing the cart service and the standard health service.
func NewGRPCServer(h *GRPCHandler, logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))
	RegisterCartServer(srv, h)

	hs := health.NewServer()
	hs.SetServingStatus(CartServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc_request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	view, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, h.toStatus(err)
	}

	items := make([]any, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, lineFields(line))
	}
	unavailable := make([]any, 0, len(view.Unavailable))
	for _, line := range view.Unavailable {
		unavailable = append(unavailable, lineFields(line))
	}
	summary := view.Summary()

	return newStruct(map[string]any{
		"items":       items,
		"unavailable": unavailable,
		"summary": map[string]any{
			"itemCount": summary.ItemCount,
			"subtotal":  summary.Subtotal,
			"shipping":  summary.Shipping,
			"total":     summary.Total,
		},
	})
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	quantity := 1
	if _, ok := req.GetFields()["quantity"]; ok {
		if quantity, err = intField(req, "quantity"); err != nil {
			return nil, err
		}
	}

	result, err := h.carts.AddToCart(ctx, userID, stringField(req, "productId"), quantity)
	if err != nil {
		return nil, h.toStatus(err)
	}

	entries := make([]any, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, map[string]any{
			"id":        e.ID,
			"productId": e.ProductID,
			"quantity":  e.Quantity,
			"addedAt":   e.AddedAt.Format(time.RFC3339Nano),
		})
	}
	return newStruct(map[string]any{
		"cartItemCount": result.CartItemCount,
		"cart":          entries,
	})
}

func (h *GRPCHandler) UpdateCartItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := req.GetFields()["quantity"]; !ok {
		return nil, status.Error(codes.InvalidArgument, "quantity is required")
	}
	quantity, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}

	if err := h.carts.UpdateCartItem(ctx, userID, stringField(req, "itemId"), quantity); err != nil {
		return nil, h.toStatus(err)
	}
	return newStruct(map[string]any{"success": true})
}

func (h *GRPCHandler) RemoveCartItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.carts.RemoveCartItem(ctx, userID, stringField(req, "itemId")); err != nil {
		return nil, h.toStatus(err)
	}
	return newStruct(map[string]any{"success": true})
}

func (h *GRPCHandler) ClearCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.carts.ClearCart(ctx, userID); err != nil {
		return nil, h.toStatus(err)
	}
	return newStruct(map[string]any{"success": true})
}

func (h *GRPCHandler) GetCartCount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userFromMetadata(ctx)
	if err != nil {
		return nil, err
	}

	count, err := h.carts.GetCartCount(ctx, userID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return newStruct(map[string]any{"count": count})
}

func (h *GRPCHandler) toStatus(err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(grpcCode(kind), err.Error())
}

func grpcCode(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindInsufficientStock, domain.KindProductInactive:
		return codes.FailedPrecondition
	case domain.KindConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func userFromMetadata(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get(userIDMetadata) {
		if id := strings.TrimSpace(v); id != "" {
			return id, nil
		}
	}
	return "", status.Error(codes.Unauthenticated, errUnauthenticated.Error())
}

func lineFields(line domain.CartLine) map[string]any {
	fields := map[string]any{
		"id":        line.EntryID,
		"productId": line.ProductID,
		"name":      line.Name,
		"quantity":  line.Quantity,
		"addedAt":   line.AddedAt.Format(time.RFC3339Nano),
	}
	if line.Reason != "" {
		fields["reason"] = line.Reason
		return fields
	}
	fields["price"] = line.BasePrice.StringFixed(2)
	fields["discountedPrice"] = line.UnitPrice.StringFixed(2)
	fields["itemTotal"] = line.LineTotal.StringFixed(2)
	if line.StockStatus != "" {
		fields["stockStatus"] = line.StockStatus
	}
	return fields
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// intField reads a whole number. Fractions, non-numbers and values outside int32 are rejected.
func intField(s *structpb.Struct, key string) (int, error) {
	num, ok := s.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
	if !ok || num.NumberValue != math.Trunc(num.NumberValue) || math.Abs(num.NumberValue) > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(num.NumberValue), nil
}
