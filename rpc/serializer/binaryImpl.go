package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dCtl/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 1 byte flags, then every present field as
// 4 byte big endian length followed by the raw bytes, in flag order.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasService   byte = 1 << 0
	hasMethod    byte = 1 << 1
	hasAuthToken byte = 1 << 2
	hasPayload   byte = 1 << 3
	hasErrCode   byte = 1 << 4
	hasErr       byte = 1 << 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Service != "" {
		flags |= hasService
		result = appendField(result, []byte(msg.Service))
	}
	if msg.Method != "" {
		flags |= hasMethod
		result = appendField(result, []byte(msg.Method))
	}
	if msg.AuthToken != "" {
		flags |= hasAuthToken
		result = appendField(result, []byte(msg.AuthToken))
	}
	// an empty but non nil payload is preserved
	if msg.Payload != nil {
		flags |= hasPayload
		result = appendField(result, msg.Payload)
	}
	if msg.ErrCode != "" {
		flags |= hasErrCode
		result = appendField(result, []byte(msg.ErrCode))
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendField(result, []byte(msg.Err))
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	r := fieldReader{data: data, pos: 2}

	if flags&hasService != 0 {
		msg.Service = string(r.next("service"))
	}
	if flags&hasMethod != 0 {
		msg.Method = string(r.next("method"))
	}
	if flags&hasAuthToken != 0 {
		msg.AuthToken = string(r.next("auth token"))
	}
	if flags&hasPayload != 0 {
		if p := r.next("payload"); p != nil {
			msg.Payload = make([]byte, len(p))
			copy(msg.Payload, p)
		}
	}
	if flags&hasErrCode != 0 {
		msg.ErrCode = string(r.next("error code"))
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.next("error"))
	}
	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2
	for _, n := range []int{len(msg.Service), len(msg.Method), len(msg.AuthToken), len(msg.ErrCode), len(msg.Err)} {
		if n > 0 {
			size += 4 + n
		}
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	return size
}

func appendField(buf []byte, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

// fieldReader reads length prefixed fields and remembers the first error
type fieldReader struct {
	data []byte
	pos  int
	err  error
}

func (r *fieldReader) next(name string) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+4 > len(r.data) {
		r.err = fmt.Errorf("data too short for %s length", name)
		return nil
	}
	n := int(binary.BigEndian.Uint32(r.data[r.pos : r.pos+4]))
	r.pos += 4
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s data", name)
		return nil
	}
	field := r.data[r.pos : r.pos+n]
	r.pos += n
	return field
}
