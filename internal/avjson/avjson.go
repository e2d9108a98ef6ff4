// Package avjson converts DynamoDB attribute values to a JSON-friendly
// tagged form and back. Cursor encoding and envelope encryption both need a
// faithful round trip that keeps N distinct from S.
package avjson

import (
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Encode converts an attribute value to its tagged JSON form.
func Encode(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return map[string]any{"S": v.Value}, nil
	case *types.AttributeValueMemberN:
		return map[string]any{"N": v.Value}, nil
	case *types.AttributeValueMemberB:
		return map[string]any{"B": base64.StdEncoding.EncodeToString(v.Value)}, nil
	case *types.AttributeValueMemberBOOL:
		return map[string]any{"BOOL": v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return map[string]any{"NULL": true}, nil
	case *types.AttributeValueMemberL:
		list := make([]any, len(v.Value))
		for i, item := range v.Value {
			encoded, err := Encode(item)
			if err != nil {
				return nil, err
			}
			list[i] = encoded
		}
		return map[string]any{"L": list}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]any, len(v.Value))
		for k, val := range v.Value {
			encoded, err := Encode(val)
			if err != nil {
				return nil, err
			}
			m[k] = encoded
		}
		return map[string]any{"M": m}, nil
	case *types.AttributeValueMemberSS:
		return map[string]any{"SS": v.Value}, nil
	case *types.AttributeValueMemberNS:
		return map[string]any{"NS": v.Value}, nil
	case *types.AttributeValueMemberBS:
		encoded := make([]string, len(v.Value))
		for i, b := range v.Value {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		return map[string]any{"BS": encoded}, nil
	default:
		return nil, fmt.Errorf("unknown attribute value type: %T", av)
	}
}

// EncodeMap converts a whole item or key map.
func EncodeMap(avs map[string]types.AttributeValue) (map[string]any, error) {
	if avs == nil {
		return nil, nil
	}
	out := make(map[string]any, len(avs))
	for k, av := range avs {
		encoded, err := Encode(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = encoded
	}
	return out, nil
}

// Decode converts the tagged JSON form back to an attribute value.
func Decode(v any) (types.AttributeValue, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected tagged map, got %T", v)
	}

	if val, ok := m["S"]; ok {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("S value must be a string")
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	}
	if val, ok := m["N"]; ok {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("N value must be a string")
		}
		return &types.AttributeValueMemberN{Value: s}, nil
	}
	if val, ok := m["B"]; ok {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("B value must be a string")
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode binary: %w", err)
		}
		return &types.AttributeValueMemberB{Value: decoded}, nil
	}
	if val, ok := m["BOOL"]; ok {
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("BOOL value must be a bool")
		}
		return &types.AttributeValueMemberBOOL{Value: b}, nil
	}
	if _, ok := m["NULL"]; ok {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	if val, ok := m["L"]; ok {
		items, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("L value must be a list")
		}
		list := make([]types.AttributeValue, len(items))
		for i, item := range items {
			av, err := Decode(item)
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	}
	if val, ok := m["M"]; ok {
		entries, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("M value must be a map")
		}
		avm := make(map[string]types.AttributeValue, len(entries))
		for k, item := range entries {
			av, err := Decode(item)
			if err != nil {
				return nil, err
			}
			avm[k] = av
		}
		return &types.AttributeValueMemberM{Value: avm}, nil
	}
	if val, ok := m["SS"]; ok {
		ss, err := stringSlice(val, "SS")
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberSS{Value: ss}, nil
	}
	if val, ok := m["NS"]; ok {
		ns, err := stringSlice(val, "NS")
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberNS{Value: ns}, nil
	}
	if val, ok := m["BS"]; ok {
		encoded, err := stringSlice(val, "BS")
		if err != nil {
			return nil, err
		}
		bs := make([][]byte, len(encoded))
		for i, s := range encoded {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("decode binary set: %w", err)
			}
			bs[i] = decoded
		}
		return &types.AttributeValueMemberBS{Value: bs}, nil
	}

	return nil, fmt.Errorf("unknown tagged form: %v", m)
}

// DecodeMap converts a whole tagged map back to attribute values.
func DecodeMap(encoded map[string]any) (map[string]types.AttributeValue, error) {
	if encoded == nil {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(encoded))
	for k, v := range encoded {
		av, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func stringSlice(val any, tag string) ([]string, error) {
	switch items := val.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s items must be strings", tag)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s value must be a list", tag)
	}
}
