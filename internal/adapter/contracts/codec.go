package contracts

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// GRPCService is the fully qualified name of the order service. Messages are
// the JSON shapes of this package, carried with the "json" content subtype.
const GRPCService = "pos.v1.OrderService"

// IdempotencyMetadataKey carries the idempotency key on gRPC submissions.
const IdempotencyMetadataKey = "idempotency-key"

// CodecName is registered with gRPC so both ends can select it per call.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

// FullMethod returns the gRPC path of method on the order service.
func FullMethod(method string) string {
	return "/" + GRPCService + "/" + method
}
