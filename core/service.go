package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the settlement engine. Every mutating operation runs inside one
// SettlementStore unit; the ledger transfer is its last step.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	store             SettlementStore
	outboxStore       OutboxStore
	ledger            TokenLedger
	swapExecutor      SwapExecutor
	custody           *CustodyVault
	custodySeed       []byte
	clock             func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SettlementStore   SettlementStore
	OutboxStore       OutboxStore
	TokenLedger       TokenLedger
	SwapExecutor      SwapExecutor
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("paychain", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("paychain"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.settlementStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.settlementStore = stores.SettlementStore()
				if builder.outboxStore == nil {
					builder.outboxStore = stores.OutboxStore()
				}
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.settlementStore = stores.SettlementStore()
			if builder.outboxStore == nil {
				builder.outboxStore = stores.OutboxStore()
			}
		}
	}
	if builder.settlementStore == nil {
		memory := NewMemorySettlementStore()
		builder.settlementStore = memory
		if builder.outboxStore == nil {
			builder.outboxStore = memory
		}
	}
	if builder.outboxStore == nil {
		if outbox, ok := builder.settlementStore.(OutboxStore); ok {
			builder.outboxStore = outbox
		}
	}

	seed, ephemeral, err := resolveCustodySeed(context.Background(), finalConfig.Custody, builder.secretProvider)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		store:             builder.settlementStore,
		outboxStore:       builder.outboxStore,
		ledger:            builder.tokenLedger,
		swapExecutor:      builder.swapExecutor,
		custody:           NewCustodyVault(builder.tokenLedger),
		custodySeed:       seed,
		clock:             builder.clock,
	}
	if ephemeral {
		service.logWarn(context.Background(), "custody seed not configured, using an ephemeral seed", map[string]any{
			"service_name": finalConfig.ServiceName,
		})
	}
	return service, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// resolveCustodySeed returns the configured seed bytes. An empty seed yields a
// random one and ephemeral=true; custody derived from it does not survive a
// restart.
func resolveCustodySeed(ctx context.Context, cfg CustodyConfig, secrets SecretProvider) ([]byte, bool, error) {
	raw := strings.TrimSpace(cfg.Seed)
	if raw == "" {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, false, fmt.Errorf("core: generate custody seed: %w", err)
		}
		return seed, true, nil
	}
	if cfg.Sealed {
		if secrets == nil {
			return nil, false, fmt.Errorf("core: custody.seed is sealed but no secret provider is configured")
		}
		opened, err := secrets.Decrypt(ctx, []byte(raw))
		if err != nil {
			return nil, false, fmt.Errorf("core: open custody seed: %w", err)
		}
		if len(opened) == 0 {
			return nil, false, fmt.Errorf("core: custody seed is required")
		}
		return opened, false, nil
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X"))
	if err != nil {
		return nil, false, fmt.Errorf("core: custody.seed is invalid hex: %w", err)
	}
	if len(decoded) == 0 {
		return nil, false, fmt.Errorf("core: custody seed is required")
	}
	return decoded, false, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SettlementStore:   s.store,
		OutboxStore:       s.outboxStore,
		TokenLedger:       s.ledger,
		SwapExecutor:      s.swapExecutor,
	}
}

// NewOutboxDispatcher builds a dispatcher over the service outbox using the
// outbox config block.
func (s *Service) NewOutboxDispatcher(sinks ...EventSink) (*OutboxDispatcher, error) {
	if s == nil || s.outboxStore == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	return NewOutboxDispatcher(s.outboxStore, s.config.OutboxDispatcherConfig(), sinks...)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s != nil && s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) requireStore() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("core: settlement store is required")
	}
	return nil
}

func (s *Service) requireLedger() error {
	if s == nil || s.ledger == nil {
		return fmt.Errorf("core: token ledger is required")
	}
	return nil
}

// vaultAuthority derives the custody signer for the deployment.
func (s *Service) vaultAuthority(deployment Deployment) VaultAuthority {
	return deriveVaultAuthority(deployment.ProgramID, s.custodySeed)
}

func (s *Service) badInput(field string, message string) error {
	factory := goerrors.New
	if s != nil && s.errorFactory != nil {
		factory = s.errorFactory
	}
	return factory(message, goerrors.CategoryBadInput).
		WithTextCode(ErrorCodeBadInput).
		WithMetadata(map[string]any{"field": field})
}
