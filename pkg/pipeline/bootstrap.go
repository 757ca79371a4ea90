package pipeline

import (
	"fmt"

	"github.com/synaptica-ai/cid-coder/pkg/auditor"
	"github.com/synaptica-ai/cid-coder/pkg/classifier"
	"github.com/synaptica-ai/cid-coder/pkg/common/config"
	"github.com/synaptica-ai/cid-coder/pkg/common/database"
	"github.com/synaptica-ai/cid-coder/pkg/common/kafka"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/dlp"
	"github.com/synaptica-ai/cid-coder/pkg/filter"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/retriever"
	"github.com/synaptica-ai/cid-coder/pkg/selector"
	"github.com/synaptica-ai/cid-coder/pkg/storage"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
	"golang.org/x/oauth2/clientcredentials"
)

// FromConfig builds a pipeline and its optional backends from cfg. The returned
// cleanup closes whatever was opened.
func FromConfig(cfg *config.Config) (*Pipeline, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Pipeline, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	taxonomy, err := terminology.Load(cfg.TaxonomyPath)
	if err != nil {
		return fail(fmt.Errorf("load taxonomy: %w", err))
	}
	strategy, err := classifier.ParseStrategy(cfg.ClassifierStrategy)
	if err != nil {
		return fail(err)
	}
	strictness, err := auditor.ParseStrictness(cfg.AuditStrictness)
	if err != nil {
		return fail(err)
	}

	opts := llm.ClientOptions{
		BaseURL:      cfg.LLMBaseURL,
		APIKey:       cfg.LLMAPIKey,
		Timeout:      cfg.LLMTimeout,
		EmbedTimeout: cfg.EmbeddingTimeout,
		MaxAttempts:  cfg.LLMMaxAttempts,
		RateLimit:    cfg.LLMRateLimitRPS,
		RateBurst:    cfg.LLMRateLimitBurst,
	}
	if cfg.LLMOAuthTokenURL != "" {
		opts.OAuth = &clientcredentials.Config{
			ClientID:     cfg.LLMOAuthClientID,
			ClientSecret: cfg.LLMOAuthClientSecret,
			TokenURL:     cfg.LLMOAuthTokenURL,
		}
	}
	client := llm.NewClient(opts)

	var gen llm.Generator = client
	if cfg.LLMCacheEnabled {
		rdb, err := database.GetRedis(cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("response cache disabled")
		} else {
			gen = llm.NewCachedGenerator(client, llm.NewRedisCache(rdb, cfg.LLMCacheTTL))
			closers = append(closers, func() { _ = database.CloseRedis() })
		}
	}

	var (
		observers []llm.CallObserver
		callLog   CallLog
	)
	if cfg.ProvenanceDBPath != "" {
		prov, err := storage.OpenProvenance(cfg.ProvenanceDBPath)
		if err != nil {
			return fail(fmt.Errorf("open provenance store: %w", err))
		}
		observers = append(observers, prov)
		callLog = prov
		closers = append(closers, func() { _ = prov.Close() })
	}
	instrumented := llm.Instrument(gen, client, observers...)

	deps := Deps{
		Filter: filter.New(cfg.EntityCategories),
		Classifier: classifier.New(instrumented, taxonomy, classifier.Options{
			Model:         cfg.ClassifierModel,
			Strategy:      strategy,
			AllowInferred: cfg.AllowInferred,
			Concurrency:   cfg.LabelConcurrency,
		}),
		Retriever: retriever.New(instrumented, retriever.Options{Model: cfg.EmbeddingModel, TopK: cfg.RetrievalTopK}),
		Selector:  selector.New(instrumented, selector.Options{Model: cfg.SelectorModel}),
		Auditor:   auditor.New(instrumented, auditor.Options{Model: cfg.AuditorModel, Strictness: strictness}),
		CallLog:   callLog,
	}

	if cfg.RedactPrompts {
		rules, err := dlp.LoadRules(cfg.DLPRulesPath)
		if err != nil {
			return fail(fmt.Errorf("load redaction rules: %w", err))
		}
		detector, err := dlp.NewDetector(rules)
		if err != nil {
			return fail(err)
		}
		deps.Redactor = detector
	}

	if cfg.EventsEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventTopic)
		deps.Events = producer
		closers = append(closers, func() { _ = producer.Close() })
	}

	if cfg.LedgerEnabled {
		db, err := database.GetPostgres(cfg)
		if err != nil {
			return fail(fmt.Errorf("connect ledger: %w", err))
		}
		ledger := storage.NewLedger(db)
		if err := ledger.AutoMigrate(); err != nil {
			return fail(fmt.Errorf("migrate ledger: %w", err))
		}
		deps.Ledger = ledger
		deps.Runs = ledger
		closers = append(closers, func() { _ = database.ClosePostgres() })
	}

	logger.Log.WithFields(map[string]interface{}{
		"strategy":   string(strategy),
		"strictness": string(strictness),
		"chapters":   taxonomy.Len(),
		"workers":    cfg.Workers,
		"cache":      cfg.LLMCacheEnabled,
		"events":     cfg.EventsEnabled,
		"ledger":     cfg.LedgerEnabled,
		"redaction":  cfg.RedactPrompts,
	}).Info("pipeline configured")

	p := New(deps, Options{
		CodeBankDir:      cfg.CodeBankDir,
		Workers:          cfg.Workers,
		LabelConcurrency: cfg.LabelConcurrency,
	})
	return p, cleanup, nil
}
