// Package app wires configuration, storage and services into the API and
// the maintenance commands shared by every binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"talent-source/config"
	"talent-source/internal/auth"
	"talent-source/internal/billing"
	"talent-source/internal/candidates"
	"talent-source/internal/employers"
	"talent-source/internal/export"
	"talent-source/internal/httpapi"
	"talent-source/internal/interviews"
	"talent-source/internal/notifications"
	"talent-source/internal/otp"
	"talent-source/internal/purchases"
	"talent-source/internal/revalidate"
	"talent-source/internal/seed"
	"talent-source/internal/skills"
	"talent-source/internal/store"
	"talent-source/models"
	"talent-source/services"
	"talent-source/utils"
)

type App struct {
	Config *config.Config

	Store      *store.Store
	Files      services.S3Client
	Cache      services.Cache
	SkillIndex services.SkillIndex
	Dispatcher *revalidate.Dispatcher

	Sessions      *auth.Sessions
	Auth          *auth.Service
	OTP           *otp.Service
	Billing       *billing.Service
	Skills        *skills.Service
	Candidates    *candidates.Service
	Employers     *employers.Service
	Interviews    *interviews.Service
	Notifications *notifications.Service
	Purchases     *purchases.Service
	Exports       *export.Service
	Seeder        *seed.Seeder

	closeCache func() error
}

// NewAWSConfig loads AWS settings for cfg.
func NewAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return services.NewAWSConfig(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
}

// NewStore connects the DynamoDB tables named by cfg.
func NewStore(awsCfg aws.Config, cfg *config.Config) *store.Store {
	return store.New(services.NewDynamoClient(awsCfg, cfg.DynamoEndpoint), store.TableNames(cfg.TablePrefix))
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	awsCfg, err := NewAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pricing, err := config.LoadPricing(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	index, err := services.OpenSkillIndex(ctx, cfg.SkillIndexPath)
	if err != nil {
		return nil, fmt.Errorf("open skill index: %w", err)
	}

	st := NewStore(awsCfg, cfg)
	files := services.NewS3Service(awsCfg, cfg.S3Endpoint)
	cache, closeCache := newCache(cfg)
	dispatcher := revalidate.NewDispatcher(revalidate.DefaultHooks(), cache, revalidate.Config{
		URL:       cfg.FrontendRevalidateURL,
		Secret:    cfg.FrontendRevalidateSecret,
		QueueSize: cfg.RevalidateQueueSize,
	})
	c := newClients(cfg, awsCfg)

	var embedder skills.Embedder
	if c.openai != nil {
		embedder = c.openai
	}

	a := &App{
		Config:     cfg,
		Store:      st,
		Files:      files,
		Cache:      cache,
		SkillIndex: index,
		Dispatcher: dispatcher,
		Sessions:   auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies),
		closeCache: closeCache,
	}
	a.OTP = otp.NewService(st, c.sms, cfg.OTPPepper)
	a.Auth = auth.NewService(st, a.OTP, dispatcher)
	a.Billing = billing.NewService(st, pricing)
	a.Notifications = notifications.NewService(st, c.email, dispatcher)
	a.Skills = skills.NewService(st, index, embedder, c.suggester, cache, dispatcher, skills.Config{
		MaxDistance:    cfg.SkillMaxDistance,
		EmbeddingTTL:   cfg.EmbeddingCacheTTL,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	a.Candidates = candidates.NewService(st, files, cfg.UploadsBucket, a.Billing, a.Notifications, dispatcher)
	a.Employers = employers.NewService(st, a.Billing, dispatcher)
	a.Interviews = interviews.NewService(st, a.Billing, a.Notifications, dispatcher)
	a.Purchases = purchases.NewService(st, c.payments, a.Notifications, dispatcher, cfg.PublicURL, cfg.MyFatoorahWebhookSecret)
	a.Exports = export.NewService(st, files, cfg.SnapshotBucket, cfg.SnapshotS3Key)
	a.Seeder = seed.NewSeeder(st, a.Skills, dispatcher, cfg.MaxConcurrency)

	utils.Logger().Info("app ready",
		zap.Bool("dryRun", cfg.DryRun()),
		zap.Bool("embeddings", embedder != nil),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.String("tablePrefix", cfg.TablePrefix))
	return a, nil
}

// Handler is the JSON API.
func (a *App) Handler() http.Handler {
	return httpapi.New(httpapi.Deps{
		Sessions:         a.Sessions,
		Auth:             a.Auth,
		OTP:              a.OTP,
		Skills:           a.Skills,
		Candidates:       a.Candidates,
		Employers:        a.Employers,
		Interviews:       a.Interviews,
		Notifications:    a.Notifications,
		Purchases:        a.Purchases,
		Exports:          a.Exports,
		Revalidator:      a.Dispatcher,
		Cache:            a.Cache,
		PaymentReturnURL: a.Config.PaymentReturnURL,
	})
}

// Migrate creates missing tables. The skill index schema is created when
// the index is opened.
func (a *App) Migrate(ctx context.Context) error {
	return a.Store.Migrate(ctx)
}

// Reindex rebuilds the skill vectors and prints a summary.
func (a *App) Reindex(ctx context.Context) (*models.ReindexStats, error) {
	start := time.Now()
	stats, err := a.Skills.Reindex(ctx)
	if err != nil {
		return nil, err
	}
	stats.PrintSummary(time.Since(start))
	return stats, nil
}

// Close drains pending revalidations and releases local resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain revalidations: %w", err))
	}
	if err := a.SkillIndex.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close skill index: %w", err))
	}
	if err := a.closeCache(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	return errors.Join(errs...)
}
