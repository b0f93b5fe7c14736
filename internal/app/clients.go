package app

import (
	"github.com/aws/aws-sdk-go-v2/aws"

	"talent-source/config"
	"talent-source/services"
	"talent-source/utils"
)

// clients are the outbound integrations. Dry runs swap the ones that cost
// money or reach real people for logging mocks.
type clients struct {
	sms       services.SMSClient
	email     services.EmailClient
	payments  services.PaymentGateway
	openai    services.OpenAIClient
	suggester services.SuggesterClient
}

func newClients(cfg *config.Config, awsCfg aws.Config) clients {
	if cfg.DryRun() {
		utils.Debug("dry run: sms, email and payments are mocked, skill search uses substring matching")
		c := clients{
			sms:      services.NewMockSMSService(),
			email:    services.NewMockEmailService(),
			payments: services.NewMockPaymentGateway(cfg.PublicURL),
		}
		// a key still enables embeddings in dry runs
		if cfg.OpenAIAPIKey != "" {
			c.openai = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
			c.suggester = services.NewSuggesterService(c.openai)
		}
		return c
	}

	openai := services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	var email services.EmailClient
	if cfg.EmailFrom != "" {
		email = services.NewSESService(awsCfg, cfg.EmailFrom)
	}
	return clients{
		sms:       services.NewTaqnyatService(cfg.TaqnyatBaseURL, cfg.TaqnyatToken, cfg.TaqnyatSender),
		email:     email,
		payments:  services.NewMyFatoorahService(cfg.MyFatoorahBaseURL, cfg.MyFatoorahToken),
		openai:    openai,
		suggester: services.NewSuggesterService(openai),
	}
}

func newCache(cfg *config.Config) (services.Cache, func() error) {
	if cfg.RedisAddr == "" {
		return services.NewMemoryCache(), func() error { return nil }
	}
	cache, client := services.NewRedisCache(cfg.RedisAddr, cfg.TablePrefix)
	return cache, client.Close
}
