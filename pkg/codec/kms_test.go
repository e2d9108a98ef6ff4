package codec

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubKMS hands out one fixed data key; the "encrypted" blob is just a
// marker the stub recognizes on Decrypt.
type stubKMS struct {
	dataKey          []byte
	generateCalls    int
	decryptCalls     int
	lastRequestedKey string
}

func (s *stubKMS) GenerateDataKey(_ context.Context, params *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	s.generateCalls++
	s.lastRequestedKey = *params.KeyId
	return &kms.GenerateDataKeyOutput{
		Plaintext:      s.dataKey,
		CiphertextBlob: []byte("edk-blob"),
	}, nil
}

func (s *stubKMS) Decrypt(_ context.Context, params *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	s.decryptCalls++
	if !bytes.Equal(params.CiphertextBlob, []byte("edk-blob")) {
		return nil, assert.AnError
	}
	return &kms.DecryptOutput{Plaintext: s.dataKey}, nil
}

func fixedDataKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptingCodec_RoundTrip(t *testing.T) {
	stub := &stubKMS{dataKey: fixedDataKey()}
	c := NewEncryptingCodec(New(), "arn:aws:kms:us-east-1:1:key/k", stub, "ssn")

	sealed, err := c.Dump("ssn", "123-45-6789")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.generateCalls)
	assert.Equal(t, "arn:aws:kms:us-east-1:1:key/k", stub.lastRequestedKey)

	env, ok := sealed.(*types.AttributeValueMemberM)
	require.True(t, ok, "sealed attribute must be an envelope map")
	assert.Contains(t, env.Value, "edk")
	assert.Contains(t, env.Value, "nonce")
	assert.Contains(t, env.Value, "ct")

	out, err := c.Undump("ssn", sealed)
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", out)
	assert.Equal(t, 1, stub.decryptCalls)
}

func TestEncryptingCodec_PlainAttributesPassThrough(t *testing.T) {
	stub := &stubKMS{dataKey: fixedDataKey()}
	c := NewEncryptingCodec(New(), "arn", stub, "ssn")

	av, err := c.Dump("name", "Bob")
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Bob"}, av)
	assert.Zero(t, stub.generateCalls)
}

func TestEncryptingCodec_CiphertextBoundToAttribute(t *testing.T) {
	stub := &stubKMS{dataKey: fixedDataKey()}
	c := NewEncryptingCodec(New(), "arn", stub, "ssn", "other")

	sealed, err := c.Dump("ssn", "secret")
	require.NoError(t, err)

	// The attribute name is authenticated data; opening under another
	// attribute must fail.
	_, err = c.Undump("other", sealed)
	assert.Error(t, err)
}

func TestEncryptingCodec_RejectsNonEnvelope(t *testing.T) {
	stub := &stubKMS{dataKey: fixedDataKey()}
	c := NewEncryptingCodec(New(), "arn", stub, "ssn")

	_, err := c.Undump("ssn", &types.AttributeValueMemberS{Value: "plain"})
	assert.Error(t, err)
}
