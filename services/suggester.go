package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/utils"
)

type SuggesterClient interface {
	Suggest(ctx context.Context, name string) (*models.SkillSuggestion, error)
}

type suggesterClientImpl struct {
	openaiClient OpenAIClient
}

func NewSuggesterService(openaiClient OpenAIClient) SuggesterClient {
	return &suggesterClientImpl{openaiClient: openaiClient}
}

func (p *suggesterClientImpl) Suggest(ctx context.Context, name string) (*models.SkillSuggestion, error) {
	var message strings.Builder
	message.WriteString("Skill: ")
	message.WriteString(strings.TrimSpace(name))

	chatResp, err := p.openaiClient.SendMessage(ctx, message.String())
	if err != nil {
		return nil, fmt.Errorf("suggest skill %q: %w", name, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI for skill %q", name)
	}
	res, err := p.openaiClient.UnmarshalResponse(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	normalizeSuggestion(&res, name)
	return &res, nil
}

func normalizeSuggestion(res *models.SkillSuggestion, requested string) {
	if strings.TrimSpace(res.NameEn) == "" {
		res.NameEn = strings.TrimSpace(requested)
	}
	if class, err := models.ParseBillingClass(res.BillingClass); err == nil {
		res.BillingClass = string(class)
	} else {
		utils.Debug("model returned unknown billing class", zap.String("class", res.BillingClass))
		res.BillingClass = string(models.DefaultBillingClass)
	}
	res.Slug = Slugify(res.Slug)
	if res.Slug == "" {
		res.Slug = Slugify(res.NameEn)
	}
}

// Slugify lowercases ASCII letters and digits and joins runs of anything else with '-'.
func Slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
