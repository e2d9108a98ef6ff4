package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/internal/avjson"
)

// EncodeCursor serializes a continuation key into an opaque URL-safe token
// callers can hand back later via WithStartKey. A nil key encodes to "".
func EncodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	encoded, err := avjson.EncodeMap(key)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor reverses EncodeCursor. "" decodes to a nil key.
func DecodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var encoded map[string]any
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	key, err := avjson.DecodeMap(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return key, nil
}
