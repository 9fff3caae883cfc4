package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/technosupport/slothunter/internal/fingerprint"
	"github.com/technosupport/slothunter/internal/store"
)

// Remote is the subset of Client the service depends on.
type Remote interface {
	Activate(ctx context.Context, key string, fp fingerprint.Pair) (*Activation, error)
	Status(ctx context.Context, accessToken string) (bool, error)
	LatestConfig(ctx context.Context, accessToken string) (*RemoteConfig, error)
	Heartbeat(ctx context.Context, accessToken string, p HeartbeatPayload) error
}

// Service owns the persisted license and tokens.
type Service struct {
	store  store.Store
	remote Remote
	fp     fingerprint.Pair
	cache  *expirable.LRU[string, bool]
	now    func() time.Time
	logger *slog.Logger
}

type Options struct {
	ValidationTTL time.Duration
	Fingerprints  fingerprint.Pair
	Now           func() time.Time
	Logger        *slog.Logger
}

func NewService(st store.Store, remote Remote, opts Options) *Service {
	if opts.ValidationTTL <= 0 {
		opts.ValidationTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:  st,
		remote: remote,
		fp:     opts.Fingerprints,
		cache:  expirable.NewLRU[string, bool](16, nil, opts.ValidationTTL),
		now:    opts.Now,
		logger: opts.Logger,
	}
}

func (s *Service) Fingerprints() fingerprint.Pair { return s.fp }

// Activate validates, exchanges and persists a key. rawKey is normalized
// first so pasted input with spaces or lower case is accepted.
func (s *Service) Activate(ctx context.Context, rawKey string) (*Activation, error) {
	key := NormalizeKey(rawKey)
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	act, err := s.remote.Activate(ctx, key, s.fp)
	if err != nil {
		return nil, err
	}

	err = s.store.SetMany(ctx, map[string]any{
		store.KeyLicense:      act.License,
		store.KeyAccessToken:  act.Tokens.AccessToken,
		store.KeyRefreshToken: act.Tokens.RefreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("persist license: %w", err)
	}
	s.cache.Purge()
	s.logger.Info("license activated", "license", MaskKey(key), "plan", act.License.PlanType)
	return act, nil
}

// Deactivate removes the license and tokens.
func (s *Service) Deactivate(ctx context.Context) error {
	s.cache.Purge()
	if err := s.store.Remove(ctx, store.KeyLicense, store.KeyAccessToken, store.KeyRefreshToken); err != nil {
		return fmt.Errorf("remove license: %w", err)
	}
	return nil
}

// Load returns the stored license, or nil when none is stored.
func (s *Service) Load(ctx context.Context) (*License, Tokens, error) {
	var (
		lic  License
		toks Tokens
	)
	ok, err := s.store.Get(ctx, store.KeyLicense, &lic)
	if err != nil {
		return nil, toks, err
	}
	if _, err := s.store.Get(ctx, store.KeyAccessToken, &toks.AccessToken); err != nil {
		return nil, toks, err
	}
	if _, err := s.store.Get(ctx, store.KeyRefreshToken, &toks.RefreshToken); err != nil {
		return nil, toks, err
	}
	if !ok {
		return nil, toks, nil
	}
	return &lic, toks, nil
}

// Gate answers whether monitoring may run: a license and unexpired tokens
// are stored. It does not touch the network.
func (s *Service) Gate(ctx context.Context) bool {
	lic, toks, err := s.Load(ctx)
	if err != nil {
		s.logger.Warn("license gate: store read failed", "error", err)
		return false
	}
	return lic != nil && !TokensExpired(toks, s.now())
}

// Allowed adapts Gate to the detector's gate signature.
func (s *Service) Allowed(ctx context.Context) bool { return s.Gate(ctx) }

// Validate asks the remote status endpoint. Any failure counts as invalid.
func (s *Service) Validate(ctx context.Context) bool {
	ok, _ := s.ValidateErr(ctx)
	return ok
}

// ValidateErr is Validate but reports ErrRemoteUnavailable separately from
// a negative answer. Only answers from the service are cached.
func (s *Service) ValidateErr(ctx context.Context) (bool, error) {
	lic, toks, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	if lic == nil || toks.AccessToken == "" {
		return false, nil
	}

	key := tokenHash(toks.AccessToken)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	valid, err := s.remote.Status(ctx, toks.AccessToken)
	if err != nil {
		return false, err
	}
	s.cache.Add(key, valid)
	return valid, nil
}

// LatestConfig fetches remote config with the stored token.
func (s *Service) LatestConfig(ctx context.Context) (*RemoteConfig, error) {
	_, toks, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if toks.AccessToken == "" {
		return nil, errors.New("no access token")
	}
	return s.remote.LatestConfig(ctx, toks.AccessToken)
}

// Heartbeat sends p with this device's fingerprint attached.
func (s *Service) Heartbeat(ctx context.Context, p HeartbeatPayload) error {
	_, toks, err := s.Load(ctx)
	if err != nil {
		return err
	}
	p.BrowserFingerprint = s.fp.Browser
	return s.remote.Heartbeat(ctx, toks.AccessToken, p)
}

func tokenHash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:8])
}
