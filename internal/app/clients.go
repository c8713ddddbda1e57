package app

import (
	"context"
	"strings"

	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/apify"
	"github.com/yungbote/talentgraph-backend/internal/platform/gcp"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/talentgraph-backend/internal/platform/openai"
	"github.com/yungbote/talentgraph-backend/internal/platform/redislock"
)

// Clients holds the external capabilities. Optional ones stay nil when not
// configured; the modules that need them fail their runs with
// external_provider instead of blocking startup.
type Clients struct {
	AI      llm.Runner
	Search  modules.Searcher
	Scraper modules.ProfileScraper
	Locker  redislock.Locker
	Archive gcp.Archive
	Neo4j   *neo4jdb.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// OpenAI
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		ai, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			return Clients{}, errors.Wrap(err, "init openai client")
		}
		c.AI = ai
	} else {
		log.Warn("OPENAI_API_KEY not set; AI-backed modules and the filter gate will fail")
	}

	// Apify
	if strings.TrimSpace(cfg.Apify.Token) != "" {
		ap, err := apify.NewClient(log, cfg.Apify)
		if err != nil {
			return Clients{}, errors.Wrap(err, "init apify client")
		}
		c.Search = ap
		c.Scraper = ap
	} else {
		log.Warn("APIFY_TOKEN not set; connector modules will fail")
	}

	// Redis
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		locker, err := redislock.NewRedisLocker(log, cfg.Redis)
		if err != nil {
			return Clients{}, errors.Wrap(err, "init redis locker")
		}
		c.Locker = locker
	} else {
		log.Info("REDIS_ADDR not set; using in-process flow locks")
		c.Locker = redislock.NewLocalLocker()
	}

	// GCS
	archive, err := resolveArchive(ctx, log, cfg.GCS)
	if err != nil {
		c.Close(ctx)
		return Clients{}, err
	}
	c.Archive = archive

	// Neo4j
	graphClient, err := neo4jdb.New(log, cfg.Neo4j)
	if err != nil {
		c.Close(ctx)
		return Clients{}, errors.Wrap(err, "init neo4j")
	}
	c.Neo4j = graphClient

	return c, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
