// Package wire assembles the application from its parts: adapters into
// services, services into the queue and intake.
package wire

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/example/patchbot/internal/adapters/agent"
	"github.com/example/patchbot/internal/adapters/console"
	gitadapter "github.com/example/patchbot/internal/adapters/git"
	"github.com/example/patchbot/internal/adapters/github"
	"github.com/example/patchbot/internal/adapters/images"
	"github.com/example/patchbot/internal/adapters/sqlite"
	"github.com/example/patchbot/internal/app"
	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/core/policy"
	"github.com/example/patchbot/internal/db"
	"github.com/example/patchbot/internal/ports/primary"
	"github.com/example/patchbot/internal/ports/secondary"
)

// hookCommand is what the agent's PreToolUse hook runs. It shells back into
// this binary so the safety policy gates every tool call.
const hookCommand = "patchbot hook PreToolUse"

// App is the assembled application. Close releases owned resources.
type App struct {
	Queue   primary.QueueService
	Intake  primary.IntakeService
	Threads primary.ThreadService
	History primary.HistoryService
	Policy  *policy.Engine

	database *sql.DB
}

// Close releases the database handle, if one was opened.
func (a *App) Close() error {
	if a.database == nil {
		return nil
	}
	return a.database.Close()
}

// BuildApp wires adapters and services from the configuration. Status output
// goes to out.
func BuildApp(cfg *config.Config, out io.Writer, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	engine, err := BuildPolicy(cfg)
	if err != nil {
		return nil, err
	}

	repo := gitadapter.New(cfg.RepoPath, cfg.BaseBranch)
	runner := agent.NewRunner(cfg.AgentCommand, hookCommand, logger)
	prHost := github.NewPRHost(cfg.RepoPath, cfg.BaseBranch)
	notifier := console.NewNotifier(out)
	fetcher := images.NewFetcher()

	var watcher secondary.DeploymentWatcher
	if cfg.DeployMaxAttempts > 0 {
		watcher = github.NewDeploymentWatcher(cfg.RepoPath)
	}

	var database *sql.DB
	var history secondary.JobHistoryRepository
	if cfg.HistoryDBPath != "" {
		database, err = db.Open(cfg.HistoryDBPath)
		if err != nil {
			return nil, err
		}
		history = sqlite.NewJobHistoryRepository(database)
	}

	threads := app.NewThreadStore()
	orchestrator := app.NewOrchestratorService(
		repo, runner, prHost, notifier, threads,
		fetcher, watcher, history,
		app.OrchestratorConfig{
			BaseBranch:        cfg.BaseBranch,
			AgentMaxTurns:     cfg.AgentMaxTurns,
			ProgressInterval:  3 * time.Second,
			DeployInterval:    time.Duration(cfg.DeployPollSeconds) * time.Second,
			DeployMaxAttempts: cfg.DeployMaxAttempts,
			PRLabels:          cfg.PRLabels,
			ImageDir:          cfg.ImageDir,
		},
		logger,
	)

	queue := app.NewQueueService(orchestrator, cfg.MaxRetries,
		time.Duration(cfg.InterJobDelaySeconds)*time.Second, logger)
	intake := app.NewIntakeService(threads, queue, logger)

	return &App{
		Queue:    queue,
		Intake:   intake,
		Threads:  threads,
		History:  app.NewHistoryService(history),
		Policy:   engine,
		database: database,
	}, nil
}

// BuildPolicy creates the safety engine with any user rules appended. It is
// separate from BuildApp because the hook and policy commands need the
// engine without the rest of the application.
func BuildPolicy(cfg *config.Config) (*policy.Engine, error) {
	engine := policy.NewEngine()
	if cfg.PolicyRulesPath != "" {
		if err := engine.LoadRules(cfg.PolicyRulesPath); err != nil {
			return nil, fmt.Errorf("failed to load policy rules: %w", err)
		}
	}
	return engine, nil
}
