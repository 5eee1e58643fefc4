package credential

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/firesafe-notify/internal/gateway"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpiryBuffer is the minimum remaining lifetime of a returned credential.
	DefaultExpiryBuffer = 60 * time.Second

	defaultAuthTimeout = 15 * time.Second
)

// Authenticator obtains bearer tokens from the gateway.
type Authenticator interface {
	Login(ctx context.Context) (*gateway.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*gateway.Token, error)
}

// Manager hands out valid gateway credentials. Concurrent callers that find no
// valid credential share a single outstanding authentication call.
type Manager struct {
	auth    Authenticator
	store   *Store
	group   singleflight.Group
	buffer  time.Duration
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewManager(auth Authenticator, timeout time.Duration, logger *zap.Logger) (*Manager, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		auth:    auth,
		store:   NewStore(),
		buffer:  DefaultExpiryBuffer,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

// Credential returns a bearer value that stays valid for longer than the expiry buffer.
// It blocks for at most one authentication round-trip, or until ctx is done.
func (m *Manager) Credential(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cached, gen := m.store.Snapshot()
	if cached.ValidAt(m.now(), m.buffer) {
		return cached.Value, nil
	}

	key := "credential:" + strconv.FormatUint(gen, 10)
	resultCh := m.group.DoChan(key, func() (any, error) {
		return m.authenticate(ctx, gen)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return "", fmt.Errorf("failed to obtain gateway credential: %w", res.Err)
		}
		return res.Val.(*Credential).Value, nil
	}
}

// Clear invalidates the cached credential. An authentication already in flight
// is not cancelled, but its result is not cached and later callers start anew.
func (m *Manager) Clear() {
	gen := m.store.Clear()
	m.logger.Info("gateway credential cleared", zap.Uint64("generation", gen))
}

func (m *Manager) authenticate(callerCtx context.Context, gen uint64) (*Credential, error) {
	// A flight for this generation may have completed between the caller's
	// snapshot and this call.
	cached, current := m.store.Snapshot()
	if current == gen && cached.ValidAt(m.now(), m.buffer) {
		return cached, nil
	}

	// The call is shared by every waiter, so one caller's cancellation must not abort it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), m.timeout)
	defer cancel()

	fresh, mode, err := m.obtain(ctx, cached)
	if err != nil {
		m.metrics.IncCredentialAuth(mode, "failure")
		m.logger.Error("gateway authentication failed",
			zap.String("mode", mode),
			zap.String("kind", string(gateway.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	m.metrics.IncCredentialAuth(mode, "success")

	if !m.store.Replace(gen, fresh) {
		m.logger.Info("gateway credential obtained after invalidation, not cached",
			zap.String("mode", mode),
			zap.Uint64("generation", gen),
		)
		return fresh, nil
	}

	m.logger.Info("gateway credential refreshed",
		zap.String("mode", mode),
		zap.Time("expiresAt", fresh.ExpiresAt),
	)
	return fresh, nil
}

func (m *Manager) obtain(ctx context.Context, cached *Credential) (*Credential, string, error) {
	if cached.RenewableAt(m.now(), m.buffer) {
		issuedAt := m.now()
		token, err := m.auth.Refresh(ctx, cached.RenewalValue)
		if err == nil {
			err = m.usable("refresh", token, issuedAt)
		}
		if err == nil {
			return newCredential(token, issuedAt), "refresh", nil
		}
		m.metrics.IncCredentialAuth("refresh", "failure")
		m.logger.Warn("gateway token refresh failed, falling back to login", zap.Error(err))
	}

	issuedAt := m.now()
	token, err := m.auth.Login(ctx)
	if err == nil {
		err = m.usable("login", token, issuedAt)
	}
	if err != nil {
		return nil, "login", err
	}
	return newCredential(token, issuedAt), "login", nil
}

// usable rejects tokens that would already sit inside the expiry buffer.
func (m *Manager) usable(op string, token *gateway.Token, issuedAt time.Time) error {
	if token == nil || token.AccessToken == "" {
		return &gateway.Error{Op: op, Kind: gateway.KindInvalidResponse, Message: "token missing in response"}
	}
	if !newCredential(token, issuedAt).ValidAt(m.now(), m.buffer) {
		return &gateway.Error{
			Op:      op,
			Kind:    gateway.KindInvalidResponse,
			Message: fmt.Sprintf("token lifetime %s does not exceed expiry buffer %s", token.ExpiresIn, m.buffer),
		}
	}
	return nil
}

func newCredential(token *gateway.Token, issuedAt time.Time) *Credential {
	cred := &Credential{
		Value:     token.AccessToken,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(token.ExpiresIn),
	}
	if token.RefreshToken != "" {
		cred.RenewalValue = token.RefreshToken
		cred.RenewalExpiresAt = issuedAt.Add(token.RefreshExpiresIn)
	}
	return cred
}
