// Package wire provides dependency injection for the quill application.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"database/sql"
	"io"
	"os"
	"sync"

	cliadapter "github.com/example/quill/internal/adapters/cli"
	"github.com/example/quill/internal/adapters/generator"
	"github.com/example/quill/internal/adapters/persistence"
	"github.com/example/quill/internal/adapters/persona"
	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/app"
	"github.com/example/quill/internal/config"
	"github.com/example/quill/internal/db"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

var (
	configFile string

	cfg      *config.Config
	database *sql.DB

	planService       primary.PlanService
	checkpointService primary.CheckpointService
	backlogService    primary.BacklogService
	contentService    primary.ContentService
	transcriptService primary.TranscriptService
	obligationService primary.ObligationService
	logService        primary.LogService
	workService       primary.WorkService
	agentProvider     secondary.AgentIdentityProvider
	personaDirectory  secondary.PersonaDirectory

	once sync.Once
)

// SetConfigFile selects an explicit config file. It must be called before
// any service is requested.
func SetConfigFile(path string) {
	configFile = path
}

// Config returns the resolved configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// DB returns the shared database handle.
func DB() *sql.DB {
	once.Do(initServices)
	return database
}

// PlanService returns the singleton PlanService instance.
func PlanService() primary.PlanService {
	once.Do(initServices)
	return planService
}

// CheckpointService returns the singleton CheckpointService instance.
func CheckpointService() primary.CheckpointService {
	once.Do(initServices)
	return checkpointService
}

// BacklogService returns the singleton BacklogService instance.
func BacklogService() primary.BacklogService {
	once.Do(initServices)
	return backlogService
}

// ContentService returns the singleton ContentService instance.
func ContentService() primary.ContentService {
	once.Do(initServices)
	return contentService
}

// TranscriptService returns the singleton TranscriptService instance.
func TranscriptService() primary.TranscriptService {
	once.Do(initServices)
	return transcriptService
}

// ObligationService returns the singleton ObligationService instance.
func ObligationService() primary.ObligationService {
	once.Do(initServices)
	return obligationService
}

// LogService returns the singleton LogService instance.
func LogService() primary.LogService {
	once.Do(initServices)
	return logService
}

// WorkService returns the singleton WorkService instance.
func WorkService() primary.WorkService {
	once.Do(initServices)
	return workService
}

// Personas returns the persona directory.
func Personas() secondary.PersonaDirectory {
	once.Do(initServices)
	return personaDirectory
}

// CurrentAgent resolves who is acting for ctx.
func CurrentAgent(ctx context.Context) (*secondary.AgentIdentity, error) {
	once.Do(initServices)
	return agentProvider.GetCurrentIdentity(ctx)
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if err := log.SetLevelString(cfg.Log.Level); err != nil {
		log.Warn("ignoring unknown log level", "level", cfg.Log.Level)
	}

	database, err = db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to initialize database", "path", cfg.Database.Path, "err", err)
	}
	log.Debug("database ready", "path", cfg.Database.Path)

	directory, err := persona.Load(cfg.Personas.Path)
	if err != nil {
		log.Fatal("failed to load personas", "path", cfg.Personas.Path, "err", err)
	}
	personaDirectory = directory
	agentProvider = persistence.NewAgentIdentityProvider(cfg.Agent.ID)

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	logRepo := sqlite.NewAuditLogRepository(database)
	logWriter := sqlite.NewLogWriterAdapter(logRepo)
	planRepo := sqlite.NewPlanRepository(database, logWriter)
	checkpointRepo := sqlite.NewCheckpointRepository(database, logWriter)
	backlogRepo := sqlite.NewBacklogRepository(database, logWriter)
	contentRepo := sqlite.NewContentRepository(database, logWriter)
	transcriptRepo := sqlite.NewTranscriptRepository(database)
	obligationRepo := sqlite.NewObligationRepository(database, logWriter)
	rosterRepo := sqlite.NewRosterRepository(database, logWriter)

	gen := generator.NewExecGenerator(generator.Config{
		Command: cfg.Generator.Command,
		Args:    cfg.Generator.Args,
		Timeout: cfg.Generator.Timeout,
	})

	// Create services (primary ports implementation)
	retry := app.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	checkpoints := app.NewCheckpointService(checkpointRepo, planRepo, obligationRepo, app.CheckpointConfig{
		LockTimeout:             cfg.Locks.Timeout,
		HeartbeatInterval:       cfg.Locks.Heartbeat,
		RequireObligationsClear: cfg.Gate.RequireObligationsClear,
		Retry:                   retry,
	})
	backlog := app.NewBacklogService(backlogRepo, planRepo, logRepo)
	content := app.NewContentService(contentRepo, planRepo)
	transcripts := app.NewTranscriptService(transcriptRepo)
	obligations := app.NewObligationService(obligationRepo, planRepo, personaDirectory)

	planService = app.NewPlanService(planRepo, checkpointRepo, backlogRepo, obligationRepo, contentRepo, rosterRepo, personaDirectory)
	checkpointService = checkpoints
	backlogService = backlog
	contentService = content
	transcriptService = transcripts
	obligationService = obligations
	logService = app.NewLogService(logRepo)
	workService = app.NewWorkService(checkpoints, backlog, content, transcripts, obligations, gen, app.WorkConfig{
		MaxAttempts: cfg.Transcript.MaxAttempts,
		Workers:     cfg.Workers.Count,
		MaxItems:    cfg.Workers.MaxItems,
		ProviderID:  cfg.Generator.Provider,
		ModelID:     cfg.Generator.Model,
		Retry:       retry,
	})
}

// PlanAdapter returns a new PlanAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func PlanAdapter() *cliadapter.PlanAdapter {
	return PlanAdapterWithOutput(os.Stdout)
}

// PlanAdapterWithOutput returns a new PlanAdapter writing to the given output.
func PlanAdapterWithOutput(out io.Writer) *cliadapter.PlanAdapter {
	once.Do(initServices)
	return cliadapter.NewPlanAdapter(planService, out)
}

// WorkAdapter returns a new WorkAdapter writing to stdout.
func WorkAdapter() *cliadapter.WorkAdapter {
	return WorkAdapterWithOutput(os.Stdout)
}

// WorkAdapterWithOutput returns a new WorkAdapter writing to the given output.
func WorkAdapterWithOutput(out io.Writer) *cliadapter.WorkAdapter {
	once.Do(initServices)
	return cliadapter.NewWorkAdapter(workService, out)
}
