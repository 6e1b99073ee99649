package otlp

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
)

// unixNanoToTime converts an OTLP nanosecond timestamp to time.Time. Zero
// maps to the Unix epoch, matching the store's DateTime64 default.
func unixNanoToTime(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}

// hexEncode converts a byte slice to a hex string. Used for trace_id
// (16 bytes → 32 chars) and span_id (8 bytes → 16 chars).
func hexEncode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

// flattenAttributes converts an OTLP KeyValue list to a string map. Complex
// values (arrays, kvlists) are serialized to JSON.
func flattenAttributes(kvs []*commonv1.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return map[string]string{}
	}
	result := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if kv != nil && kv.Key != "" {
			result[kv.Key] = anyValueToString(kv.Value)
		}
	}
	return result
}

// anyValueToString converts an OTLP AnyValue to its string representation.
func anyValueToString(v *commonv1.AnyValue) string {
	if v == nil {
		return ""
	}
	switch val := v.Value.(type) {
	case *commonv1.AnyValue_StringValue:
		return val.StringValue
	case *commonv1.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonv1.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'f', -1, 64)
	case *commonv1.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonv1.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonv1.AnyValue_ArrayValue:
		return arrayToJSON(val.ArrayValue)
	case *commonv1.AnyValue_KvlistValue:
		return kvlistToJSON(val.KvlistValue)
	default:
		return ""
	}
}

func arrayToJSON(arr *commonv1.ArrayValue) string {
	if arr == nil || len(arr.Values) == 0 {
		return "[]"
	}
	values := make([]string, len(arr.Values))
	for i, v := range arr.Values {
		values[i] = anyValueToString(v)
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func kvlistToJSON(kvl *commonv1.KeyValueList) string {
	if kvl == nil || len(kvl.Values) == 0 {
		return "{}"
	}
	m := make(map[string]string, len(kvl.Values))
	for _, kv := range kvl.Values {
		if kv != nil {
			m[kv.Key] = anyValueToString(kv.Value)
		}
	}
	b, _ := json.Marshal(m)
	return string(b)
}
