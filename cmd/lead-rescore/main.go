package main

import (
	"context"
	"errors"
	"time"

	"acquisition_backend/internal/adapters"
	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/db"
	"acquisition_backend/platform/logger"
)

// Re-runs the scoring agent over the scored pool. After the scoring
// heuristics change, leads parked below the shortlist threshold keep
// their old scores forever; this refreshes them so the next shortlist
// pass sees current numbers. One-off, run by hand.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting lead rescore")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	scorer, err := agent.NewScorer(cfg, log)
	if err != nil {
		log.Error("failed to initialize scoring agent", "error", err)
		panic("failed to initialize scoring agent: " + err.Error())
	}
	scoring := adapters.NewScoringAdapter(scorer, log)

	repo := repository.New(pool)
	scored, err := repo.ListByStage(ctx, domain.StageScored)
	if err != nil {
		log.Error("failed to list scored leads", "error", err)
		panic("failed to list scored leads: " + err.Error())
	}
	if len(scored) == 0 {
		log.Info("no scored leads to refresh")
		return
	}

	const delayBetweenCalls = 300 * time.Millisecond

	var processed, updated int
	for _, lead := range scored {
		if processed > 0 {
			time.Sleep(delayBetweenCalls)
		}
		processed++

		score, err := scoring.Score(ctx, lead.Contact)
		if err != nil {
			log.Warn("scoring failed, keeping old score", "leadId", lead.ID, "error", err)
			continue
		}
		if lead.Score != nil && *lead.Score == score {
			continue
		}

		old := lead.Score
		lead.Score = &score
		lead.UpdatedAt = time.Now().UTC()
		if err := repo.Save(ctx, lead); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				log.Info("lead changed underneath, skipping", "leadId", lead.ID)
				continue
			}
			log.Warn("failed to save refreshed score", "leadId", lead.ID, "error", err)
			continue
		}
		updated++
		if old != nil {
			log.Info("score refreshed", "leadId", lead.ID, "old", *old, "new", score)
		} else {
			log.Info("score refreshed", "leadId", lead.ID, "new", score)
		}
	}

	log.Info("lead rescore complete", "processed", processed, "updated", updated)
}
