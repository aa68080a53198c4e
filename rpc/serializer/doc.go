// Package serializer converts rpc messages (common.Message) to bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: interface all formats satisfy. ByName selects one from
//     configuration.
//
//   - binarySerializerImpl: custom format, one type byte and one flag byte
//     followed by the present fields as length prefixed byte strings. The
//     default, smallest and fastest.
//
//   - cborSerializerImpl: CBOR with integer map keys, compact and self
//     describing, useful for foreign clients.
//
//   - jsonSerializerImpl: human readable, handy for debugging with curl
//     against the http transport.
//
//   - gobSerializerImpl: Go's gob encoding. Kept for comparison in the
//     benchmarks, it is consistently the slowest.
//
// All implementations are stateless and safe for concurrent use.
// Deserialize always resets the target message first.
package serializer
