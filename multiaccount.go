// multiaccount.go
package dynaplan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/dynaplan/dynaplan/pkg/session"
)

// MultiAccountAdapter manages adapters across multiple AWS accounts, one
// assumed role per partner. Assumed-role credentials are cached and replaced
// shortly before they expire.
type MultiAccountAdapter struct {
	base       *Adapter
	baseConfig aws.Config
	options    []AdapterOption

	mu       sync.RWMutex
	accounts map[string]AccountConfig
	cache    sync.Map // partnerID -> *partnerEntry
}

// AccountConfig holds the assume-role settings for a partner account.
type AccountConfig struct {
	RoleARN    string
	ExternalID string
	Region     string
	// SessionDuration overrides the default one-hour role session.
	SessionDuration time.Duration
}

// NewMultiAccount creates a multi-account adapter. The base adapter runs on
// the default credential chain; partner adapters assume their configured role.
func NewMultiAccount(accounts map[string]AccountConfig, opts ...AdapterOption) (*MultiAccountAdapter, error) {
	base, err := New(session.DefaultConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create base adapter: %w", err)
	}

	baseConfig, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load base AWS config: %w", err)
	}

	return &MultiAccountAdapter{
		base:       base,
		baseConfig: baseConfig,
		options:    opts,
		accounts:   accounts,
	}, nil
}

// Partner returns the adapter for a partner account, assuming its role on
// first use. The empty partner ID returns the base adapter.
func (m *MultiAccountAdapter) Partner(partnerID string) (*Adapter, error) {
	if partnerID == "" {
		return m.base, nil
	}

	if cached, ok := m.cache.Load(partnerID); ok {
		if entry, ok := cached.(*partnerEntry); ok && !entry.expired() {
			return entry.adapter, nil
		}
	}

	m.mu.RLock()
	account, ok := m.accounts[partnerID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown partner: %s", partnerID)
	}

	return m.createPartnerAdapter(partnerID, account)
}

// AddPartner registers a partner configuration at runtime.
func (m *MultiAccountAdapter) AddPartner(partnerID string, account AccountConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[partnerID] = account
}

// RemovePartner drops a partner and its cached adapter.
func (m *MultiAccountAdapter) RemovePartner(partnerID string) {
	m.mu.Lock()
	delete(m.accounts, partnerID)
	m.mu.Unlock()

	m.cache.Delete(partnerID)
}

func (m *MultiAccountAdapter) createPartnerAdapter(partnerID string, account AccountConfig) (*Adapter, error) {
	stsClient := sts.NewFromConfig(m.baseConfig)

	sessionDuration := account.SessionDuration
	if sessionDuration == 0 {
		sessionDuration = time.Hour
	}

	creds := stscreds.NewAssumeRoleProvider(stsClient, account.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		if account.ExternalID != "" {
			o.ExternalID = &account.ExternalID
		}
		o.RoleSessionName = fmt.Sprintf("dynaplan-%s", partnerID)
		o.Duration = sessionDuration
	})

	cfg := &session.Config{
		Region:              account.Region,
		MaxRetries:          3,
		CredentialsProvider: creds,
	}

	adapter, err := New(cfg, m.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create partner adapter for %s: %w", partnerID, err)
	}

	// Replace the cached entry five minutes before the role session ends.
	m.cache.Store(partnerID, &partnerEntry{
		adapter: adapter,
		expiry:  time.Now().Add(sessionDuration - 5*time.Minute),
	})
	return adapter, nil
}

type partnerEntry struct {
	adapter *Adapter
	expiry  time.Time
}

func (e *partnerEntry) expired() bool {
	return time.Now().After(e.expiry)
}

// PartnerContext adds partner information to context for tracing
func PartnerContext(ctx context.Context, partnerID string) context.Context {
	return context.WithValue(ctx, partnerContextKey{}, partnerID)
}

// GetPartnerFromContext retrieves partner ID from context
func GetPartnerFromContext(ctx context.Context) string {
	if partnerID, ok := ctx.Value(partnerContextKey{}).(string); ok {
		return partnerID
	}
	return ""
}

type partnerContextKey struct{}
