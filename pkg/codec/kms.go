package codec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/dynaplan/dynaplan/internal/avjson"
	"github.com/dynaplan/dynaplan/pkg/core"
)

const (
	envelopeVersion = "1"

	envelopeKeyVersion    = "v"
	envelopeKeyEDK        = "edk"
	envelopeKeyNonce      = "nonce"
	envelopeKeyCiphertext = "ct"
)

// KMSAPI is the subset of the KMS client envelope encryption needs.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// EncryptingCodec wraps another codec and envelope-encrypts the dumped form
// of selected attributes with a KMS data key (AES-256-GCM). The ciphertext
// is stored as a map attribute carrying the encrypted data key, nonce and
// ciphertext, so items remain self-describing.
type EncryptingCodec struct {
	inner     core.AttributeCodec
	keyARN    string
	kms       KMSAPI
	rand      io.Reader
	encrypted map[string]struct{}
}

var _ core.AttributeCodec = (*EncryptingCodec)(nil)

// NewEncryptingCodec creates an encrypting codec over inner for the listed
// attributes.
func NewEncryptingCodec(inner core.AttributeCodec, keyARN string, client KMSAPI, attributes ...string) *EncryptingCodec {
	set := make(map[string]struct{}, len(attributes))
	for _, a := range attributes {
		set[a] = struct{}{}
	}
	return &EncryptingCodec{
		inner:     inner,
		keyARN:    keyARN,
		kms:       client,
		rand:      rand.Reader,
		encrypted: set,
	}
}

// Dump implements core.AttributeCodec. Non-encrypted attributes pass through
// to the inner codec.
func (e *EncryptingCodec) Dump(attribute string, value any) (types.AttributeValue, error) {
	plain, err := e.inner.Dump(attribute, value)
	if err != nil {
		return nil, err
	}
	if _, ok := e.encrypted[attribute]; !ok {
		return plain, nil
	}
	return e.seal(context.Background(), attribute, plain)
}

// Undump implements core.AttributeCodec.
func (e *EncryptingCodec) Undump(attribute string, av types.AttributeValue) (any, error) {
	if _, ok := e.encrypted[attribute]; ok {
		plain, err := e.open(context.Background(), attribute, av)
		if err != nil {
			return nil, err
		}
		av = plain
	}
	return e.inner.Undump(attribute, av)
}

func (e *EncryptingCodec) seal(ctx context.Context, attribute string, av types.AttributeValue) (types.AttributeValue, error) {
	plaintext, err := encodePlaintext(av)
	if err != nil {
		return nil, err
	}

	dataKey, err := e.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(e.keyARN),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("kms GenerateDataKey: %w", err)
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plaintext, []byte(attribute))

	return &types.AttributeValueMemberM{
		Value: map[string]types.AttributeValue{
			envelopeKeyVersion:    &types.AttributeValueMemberN{Value: envelopeVersion},
			envelopeKeyEDK:        &types.AttributeValueMemberB{Value: dataKey.CiphertextBlob},
			envelopeKeyNonce:      &types.AttributeValueMemberB{Value: nonce},
			envelopeKeyCiphertext: &types.AttributeValueMemberB{Value: ct},
		},
	}, nil
}

func (e *EncryptingCodec) open(ctx context.Context, attribute string, av types.AttributeValue) (types.AttributeValue, error) {
	env, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("attribute %s: expected encrypted envelope, got %T", attribute, av)
	}
	edk, err := envelopeBytes(env, envelopeKeyEDK)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attribute, err)
	}
	nonce, err := envelopeBytes(env, envelopeKeyNonce)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attribute, err)
	}
	ct, err := envelopeBytes(env, envelopeKeyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attribute, err)
	}

	decrypted, err := e.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: edk})
	if err != nil {
		return nil, fmt.Errorf("kms Decrypt: %w", err)
	}
	gcm, err := newGCM(decrypted.Plaintext)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ct, []byte(attribute))
	if err != nil {
		return nil, fmt.Errorf("attribute %s: open envelope: %w", attribute, err)
	}
	return decodePlaintext(plaintext)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("unexpected data key length: %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm init: %w", err)
	}
	return gcm, nil
}

func envelopeBytes(env *types.AttributeValueMemberM, key string) ([]byte, error) {
	member, ok := env.Value[key].(*types.AttributeValueMemberB)
	if !ok || len(member.Value) == 0 {
		return nil, fmt.Errorf("envelope field %q missing", key)
	}
	return member.Value, nil
}

func encodePlaintext(av types.AttributeValue) ([]byte, error) {
	tagged, err := avjson.Encode(av)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged)
}

func decodePlaintext(data []byte) (types.AttributeValue, error) {
	var tagged any
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decode envelope plaintext: %w", err)
	}
	return avjson.Decode(tagged)
}
