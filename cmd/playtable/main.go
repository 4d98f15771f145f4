package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/playtable/engine/board"
	"github.com/playtable/engine/demo"
	"github.com/playtable/engine/game"
	"github.com/playtable/engine/internal/config"
	"github.com/playtable/engine/internal/persist"
	"github.com/playtable/engine/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/playtable.toml"
	if p := os.Getenv("PLAYTABLE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Defaults()
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Optional PostgreSQL persistence
	var matches *persist.MatchRepo
	var journal *persist.JournalRepo
	if cfg.Database.Enabled {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		matches = persist.NewMatchRepo(db)
		journal = persist.NewJournalRepo(db)
		log.Info("persistence enabled")
	}

	// 4. Lua scripting engine: scripted actions layer on top of the demo's
	luaEngine, err := scripting.NewEngine(cfg.Server.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	log.Info("scripts loaded", zap.Int("scripted_actions", len(luaEngine.Definitions())))

	// 5. Build the match
	if cfg.Match.Game != "draw-and-discard" {
		return fmt.Errorf("unknown game %q", cfg.Match.Game)
	}
	def := demo.Definition(cfg.Match.HandSize)
	baseActions := def.Actions
	def.Actions = func(g *game.Game) {
		baseActions(g)
		luaEngine.Bind(g)
		for _, d := range luaEngine.Definitions() {
			g.Actions().Register(d)
		}
	}

	players := []string{"ada", "ben"}
	g, err := game.New(def, cfg.Match.Seed, players, log)
	if err != nil {
		return fmt.Errorf("new game: %w", err)
	}
	if err := g.Start(); err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	var matchID uuid.UUID
	var seq int64
	if matches != nil {
		matchID, err = matches.Create(ctx, def.Name, cfg.Match.Seed, players)
		if err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		// Setup commands come first so a journal replay rebuilds the board.
		if seq, err = journal.Append(ctx, matchID, seq, g.History()); err != nil {
			return fmt.Errorf("journal setup: %w", err)
		}
		log.Info("match registered", zap.String("match_id", matchID.String()))
	}

	// 6. Drive the match to completion
	for aw := g.Awaiting(); aw != nil; aw = g.Awaiting() {
		if err := ctx.Err(); err != nil {
			log.Info("shutdown requested, abandoning match")
			return nil
		}
		seat := aw.Seats[0]
		name := aw.Legal[seat][0]
		log.Debug("step awaited",
			zap.String("step", aw.Step), zap.Int("seat", seat),
			zap.String("action", name), zap.Duration("timeout", cfg.Match.StepTimeout))

		before := len(g.History())
		if err := g.PerformAction(name, seat, autoArgs(g, name, seat)); err != nil {
			return fmt.Errorf("perform %s for seat %d: %w", name, seat, err)
		}
		for _, ev := range g.Theatre().Pending() {
			log.Info("theatre event", zap.Int64("id", ev.ID),
				zap.String("type", ev.Type), zap.Int("mutations", len(ev.Mutations)))
			g.Theatre().Acknowledge(ev.ID)
		}

		if journal != nil {
			if seq, err = journal.Append(ctx, matchID, seq, g.History()[before:]); err != nil {
				return fmt.Errorf("journal append: %w", err)
			}
			if err := matches.SaveState(ctx, matchID, g.Document()); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
		}
	}

	// 7. Verify the journal reproduces the exact same board
	replayed, err := game.Replay(demo.Definition(cfg.Match.HandSize), cfg.Match.Seed, players, g.History(), log)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !reflect.DeepEqual(
		g.Tree().Doc(g.Tree().Root()),
		replayed.Tree().Doc(replayed.Tree().Root()),
	) {
		return fmt.Errorf("replay diverged from the live match")
	}

	log.Info("match finished",
		zap.String("phase", g.Phase()),
		zap.Int("commands", len(g.History())),
		zap.Int("messages", len(g.Messages())))
	return nil
}

// autoArgs fills the arguments an unattended run needs: the discard takes
// the first two cards in hand, everything else takes none.
func autoArgs(g *game.Game, name string, seat int) map[string]any {
	if name != "discard" {
		return nil
	}
	cards := g.Tree().All(demo.Hand(g, seat), board.Filter{Type: "card"})
	if len(cards) < 2 {
		return nil
	}
	return map[string]any{"first": float64(cards[0]), "second": float64(cards[1])}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
