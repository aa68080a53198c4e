package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dCtl/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
	"CBOR":   NewCBORSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Ping
		{MsgType: common.MsgTPing},

		// Call without auth
		{
			MsgType: common.MsgTCall,
			Service: "system",
			Method:  "validate_activation",
			Payload: []byte(`{"code":"ABC-123"}`),
		},

		// Call with auth
		{
			MsgType:   common.MsgTCall,
			Service:   "pool",
			Method:    "read_pool",
			AuthToken: "eyJhbGciOiJIUzI1NiJ9.e30.sig",
			Payload:   []byte(`{"name":"default_pool"}`),
		},

		// Reply
		{
			MsgType: common.MsgTSuccess,
			Payload: []byte(`{"token":"t"}`),
		},

		// Error response
		{
			MsgType: common.MsgTError,
			ErrCode: "CONFLICT",
			Err:     "confstore.MakeChanges: stale revision 3, current is 4",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTPing; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDeserializeResetsMessage checks that fields of a reused message do not leak
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			result := common.Message{Service: "stale", ErrCode: "AUTH"}
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if result.Service != "" || result.ErrCode != "" {
				t.Errorf("stale fields survived: %+v", result)
			}
		})
	}
}

// TestBinaryEmptyPayload checks that the binary format keeps an empty but non nil payload
func TestBinaryEmptyPayload(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess, Payload: []byte{}})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	var result common.Message
	if err := serializer.Deserialize(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if result.Payload == nil || len(result.Payload) != 0 {
		t.Errorf("expected empty non nil payload, got %#v", result.Payload)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for service",
			data:        []byte{3, 1, 0, 0, 0, 5, 'p', 'o', 'o'}, // claims 5 bytes, only 3 provided
			expectError: true,
		},
		{
			name:        "Invalid length for payload",
			data:        []byte{3, 8, 0, 0, 0, 10},
			expectError: true,
		},
		{
			name:        "Missing length for error",
			data:        []byte{2, 32, 0, 0},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "binary", "json", "gob", "cbor"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("expected error for unknown serializer")
	}
}
