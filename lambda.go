// lambda.go
package dynaplan

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/dynaplan/dynaplan/pkg/session"
)

var (
	// Global Lambda-optimized adapter for warm-start connection reuse
	globalLambdaAdapter *LambdaAdapter
	lambdaOnce          sync.Once
	lambdaInitErr       error
)

// LambdaAdapter wraps Adapter with Lambda-specific optimizations.
type LambdaAdapter struct {
	*Adapter
	isLambda       bool
	lambdaMemoryMB int
	xrayEnabled    bool
}

// NewLambdaOptimized returns the process-wide Lambda adapter, creating it on
// the first (cold) invocation and reusing it on warm starts.
func NewLambdaOptimized(opts ...AdapterOption) (*LambdaAdapter, error) {
	lambdaOnce.Do(func() {
		globalLambdaAdapter, lambdaInitErr = createLambdaAdapter(opts...)
	})
	return globalLambdaAdapter, lambdaInitErr
}

func createLambdaAdapter(opts ...AdapterOption) (*LambdaAdapter, error) {
	isLambda := IsLambdaEnvironment()

	// Keep-alive transport sized for a single concurrent invocation.
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	cfg := &session.Config{
		Region:     getRegion(),
		MaxRetries: 3,
		AWSConfigOptions: []func(*config.LoadOptions) error{
			config.WithHTTPClient(httpClient),
			config.WithRetryMode(aws.RetryModeAdaptive),
			config.WithRetryMaxAttempts(3),
		},
	}
	if isLambda {
		cfg.DynamoDBOptions = append(cfg.DynamoDBOptions, func(o *dynamodb.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		})
	}

	adapter, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &LambdaAdapter{
		Adapter:        adapter,
		isLambda:       isLambda,
		lambdaMemoryMB: GetLambdaMemoryMB(),
		xrayEnabled:    os.Getenv("_X_AMZN_TRACE_ID") != "",
	}, nil
}

// IsLambda reports whether the adapter was built inside a Lambda sandbox.
func (la *LambdaAdapter) IsLambda() bool {
	return la.isLambda
}

// MemoryMB returns the sandbox memory allocation, zero outside Lambda.
func (la *LambdaAdapter) MemoryMB() int {
	return la.lambdaMemoryMB
}

// XRayEnabled reports whether the invocation carries an active X-Ray trace.
func (la *LambdaAdapter) XRayEnabled() bool {
	return la.xrayEnabled
}

// Lambda environment helper functions

// IsLambdaEnvironment detects if running in AWS Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// GetLambdaMemoryMB returns the allocated memory in MB
func GetLambdaMemoryMB() int {
	memStr := os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")
	if memStr == "" {
		return 0
	}
	mem, err := strconv.Atoi(memStr)
	if err != nil {
		return 0
	}
	return mem
}

// GetRemainingTimeMillis returns milliseconds until the Lambda timeout, or -1
// when the context carries no deadline.
func GetRemainingTimeMillis(ctx context.Context) int64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(deadline).Milliseconds()
}

// getRegion returns the AWS region from environment
func getRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return "us-east-1"
}
