package session

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubConfigLoad(t *testing.T, fn func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error)) {
	t.Helper()
	original := configLoadFunc
	configLoadFunc = fn
	t.Cleanup(func() { configLoadFunc = original })
}

func stubbedAWSConfig() aws.Config {
	return aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("test", "secret", ""),
		Retryer: func() aws.Retryer {
			return aws.NopRetryer{}
		},
	}
}

func TestNewSession(t *testing.T) {
	var loadCalls int
	stubConfigLoad(t, func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		loadCalls++
		return stubbedAWSConfig(), nil
	})

	sess, err := NewSession(&Config{Region: "us-east-1", Endpoint: "http://localhost:8000"})
	require.NoError(t, err)
	assert.Equal(t, 1, loadCalls)

	client, err := sess.Client()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, "us-east-1", sess.AWSConfig().Region)
}

func TestNewSession_NilConfigUsesDefaults(t *testing.T) {
	stubConfigLoad(t, func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return stubbedAWSConfig(), nil
	})

	sess, err := NewSession(nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", sess.Config().Region)
	assert.Equal(t, 3, sess.Config().MaxRetries)
}

func TestNewSession_LoadFailure(t *testing.T) {
	stubConfigLoad(t, func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, assert.AnError
	})

	_, err := NewSession(DefaultConfig())
	assert.Error(t, err)
}

func TestClient_NilSession(t *testing.T) {
	var sess *Session
	_, err := sess.Client()
	assert.Error(t, err)
}
