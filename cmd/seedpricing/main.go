// Command seedpricing installs the default pricing table. Safe to rerun:
// unchanged pairs are left alone, changed ones retire the old row.
package main

import (
	"context"

	"github.com/joho/godotenv"

	"reelsmith/internal/credits"
	"reelsmith/internal/domain"
	"reelsmith/internal/infra"
)

type seed struct {
	kind     domain.JobKind
	provider string
	price    credits.Price
}

// Real costs are micro-USD per unit. Modal is post-charge: its row carries
// no up-front real cost because GPU seconds are only known per call.
var defaults = []seed{
	{domain.JobKindImage, "gemini", credits.Price{Credits: 10, Mode: credits.ModePreCharge, RealCost: 39_000}},
	{domain.JobKindImage, "modal", credits.Price{Credits: 8, Mode: credits.ModePostCharge}},
	{domain.JobKindVideo, "veo", credits.Price{Credits: 50, Mode: credits.ModePreCharge, RealCost: 400_000}},
	{domain.JobKindVoiceover, "elevenlabs", credits.Price{Credits: 5, Mode: credits.ModePreCharge, RealCost: 18_000}},
	{domain.JobKindMusic, "replicate", credits.Price{Credits: 15, Mode: credits.ModePreCharge, RealCost: 120_000}},
	{domain.JobKindSceneText, "openai", credits.Price{Credits: 1, Mode: credits.ModePreCharge, RealCost: 2_500}},
	{domain.JobKindSceneText, "gemini", credits.Price{Credits: 1, Mode: credits.ModePreCharge, RealCost: 1_200}},
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	ledger := credits.NewLedger(infra.NewSQLRunner(dbpool, logger), logger)
	for _, s := range defaults {
		if err := ledger.SetPrice(ctx, s.kind, s.provider, s.price); err != nil {
			logger.Fatal().Err(err).Msg("seed failed")
		}
	}
	logger.Info().Int("pairs", len(defaults)).Msg("pricing seeded")
}
