package tokengate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/venuekit/tokengate/credential"
	"github.com/venuekit/tokengate/internal/rate"
	"github.com/venuekit/tokengate/signature"
	"github.com/venuekit/tokengate/token"
)

// Builder assembles an Engine. Configure it once, call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keys      signature.KeyProvider
	registry  DeviceRegistry
	directory Directory
	auditSink AuditSink

	built bool
}

// New returns a Builder loaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the token store, the rate
// limiter, and the duplicate-suppression markers.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeyProvider sets the versioned HMAC key source for token signatures.
func (b *Builder) WithKeyProvider(keys signature.KeyProvider) *Builder {
	b.keys = keys
	return b
}

// WithDeviceRegistry sets the identity collaborator that owns device
// records.
func (b *Builder) WithDeviceRegistry(registry DeviceRegistry) *Builder {
	b.registry = registry
	return b
}

// WithDirectory sets the tenancy collaborator consulted at issuance.
func (b *Builder) WithDirectory(directory Directory) *Builder {
	b.directory = directory
	return b
}

// WithAuditSink sets the destination for observability audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the redeem latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores and collaborators,
// and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.keys == nil {
		return nil, errors.New("key provider required")
	}
	if b.registry == nil {
		return nil, errors.New("device registry required")
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signer, err := signature.NewSigner(b.keys)
	if err != nil {
		return nil, err
	}

	credentials, err := credential.NewManager(credential.Config{
		TTL:        cfg.Credential.TTL,
		Issuer:     cfg.Credential.Issuer,
		KeyID:      cfg.Credential.KeyID,
		SigningKey: cloneBytes(cfg.Credential.SigningKey),
		VerifyKeys: cfg.Credential.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		signer:      signer,
		tokens:      token.NewStore(b.redis, cfg.Store.RedisPrefix),
		limiter:     rate.New(b.redis, rate.Config{Prefix: cfg.Store.RedisPrefix}),
		credentials: credentials,
		registry:    b.registry,
		directory:   b.directory,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
