package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/utils"
)

const defaultRowSelector = "table tr"

// SkillScraperClient imports a skills taxonomy published as HTML tables.
// Each row holds name_en, name_ar and the billing class, in that order.
type SkillScraperClient interface {
	ScrapeSkills(ctx context.Context, pageURL string, rowSelector string, seeds chan<- models.SkillSeed)
	GetProcessedSlugs() map[string]bool
}

type scraperClientImpl struct {
	maxPages       int
	requestDelay   time.Duration
	processedSlugs map[string]bool
	mutex          sync.Mutex
}

func NewSkillScraper(maxPages int, requestDelay time.Duration) SkillScraperClient {
	if maxPages < 1 {
		maxPages = 1
	}
	return &scraperClientImpl{
		maxPages:       maxPages,
		requestDelay:   requestDelay,
		processedSlugs: make(map[string]bool),
	}
}

func (s *scraperClientImpl) ScrapeSkills(ctx context.Context, pageURL string, rowSelector string, seeds chan<- models.SkillSeed) {
	defer close(seeds)

	if strings.TrimSpace(rowSelector) == "" {
		rowSelector = defaultRowSelector
	}

	collector := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"),
	)
	if s.requestDelay > 0 {
		_ = collector.Limit(&colly.LimitRule{DomainGlob: "*", Delay: s.requestDelay})
	}

	pages := 0
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		pages++
		utils.Debug(fmt.Sprintf("📄 Fetching skills page %d", pages), zap.String("url", r.URL.String()))
	})

	collector.OnHTML(rowSelector, func(e *colly.HTMLElement) {
		var cells []string
		e.ForEach("td", func(_ int, td *colly.HTMLElement) {
			cells = append(cells, strings.TrimSpace(td.Text))
		})
		if len(cells) < 2 || cells[0] == "" {
			return
		}

		seed := models.SkillSeed{NameEn: cells[0], NameAr: cells[1]}
		if len(cells) > 2 {
			seed.Class = cells[2]
		}
		if class, err := models.ParseBillingClass(seed.Class); err == nil {
			seed.Class = string(class)
		} else {
			seed.Class = string(models.DefaultBillingClass)
		}
		seed.Slug = Slugify(seed.NameEn)
		if seed.Slug == "" {
			return
		}

		// prevent importing the same skill twice
		s.mutex.Lock()
		seen := s.processedSlugs[seed.Slug]
		if !seen {
			s.processedSlugs[seed.Slug] = true
		}
		s.mutex.Unlock()

		if seen {
			utils.Debug(fmt.Sprintf("\tSkipping duplicate skill: %s", seed.Slug))
			return
		}

		select {
		case seeds <- seed:
		case <-ctx.Done():
		}
	})

	// follow pagination up to the page limit
	collector.OnHTML(`a[rel="next"]`, func(e *colly.HTMLElement) {
		if pages >= s.maxPages {
			utils.Debug(fmt.Sprintf("⚠️ Reached maximum page limit (%d). Stopping.", s.maxPages))
			return
		}
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		if err := e.Request.Visit(next); err != nil {
			utils.Logger().Warn("could not follow next page", zap.String("url", next), zap.Error(err))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		utils.Logger().Error("❌ Error on skills page", zap.String("url", r.Request.URL.String()), zap.Error(err))
	})

	if err := collector.Visit(pageURL); err != nil {
		utils.Logger().Error("could not start skills import", zap.String("url", pageURL), zap.Error(err))
	}
	collector.Wait()

	utils.Debug("🏁 Skills import complete.")
}

func (s *scraperClientImpl) GetProcessedSlugs() map[string]bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res := make(map[string]bool, len(s.processedSlugs))
	for key := range s.processedSlugs {
		res[key] = true
	}
	return res
}
