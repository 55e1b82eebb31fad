// Package autosync keeps the dashboard tables populated: it imports the city
// events as urbanism projects and seeds sample alerts and research projects
// into empty tables.
package autosync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/robfig/cron/v3"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/metrics"
	"github.com/massy-ia/citydesk/internal/store"
)

// Step names, also used as metric labels.
const (
	StepEvents   = "events"
	StepAlerts   = "alerts"
	StepResearch = "research"
)

const (
	seedLat    = 48.726
	seedLng    = 2.283
	seedJitter = 0.01
)

// EventSource lists the city agenda.
type EventSource interface {
	Events(ctx context.Context) ([]adapters.Event, error)
}

// Store is the slice of the store the job writes to.
type Store interface {
	AddUrbanismProjectsByTitle(ctx context.Context, projects []*store.UrbanismProject) (int, error)
	CountAlerts(ctx context.Context, status string) (int, error)
	CreateAlerts(ctx context.Context, alerts ...*store.SuspectAlert) error
	CountResearchProjects(ctx context.Context, status string) (int, error)
	CreateResearchProjects(ctx context.Context, projects ...*store.ResearchProject) error
}

// StepResult is the outcome of one step of a run.
type StepResult struct {
	Step     string
	Inserted int
	Err      error
}

type Job struct {
	events EventSource
	store  Store
	now    func() time.Time
	faker  *gofakeit.Faker

	running sync.Mutex
	cron    *cron.Cron
	initial sync.WaitGroup
}

func New(events EventSource, s Store, seed uint64) *Job {
	return &Job{events: events, store: s, now: time.Now, faker: gofakeit.New(seed)}
}

// Run executes every step in order. A failing step is logged and does not
// stop the next ones. Run returns nil without doing anything when another run
// is still in progress.
func (j *Job) Run(ctx context.Context) []StepResult {
	if !j.running.TryLock() {
		logging.Warn().Msg("Sync already running, skipping")
		return nil
	}
	defer j.running.Unlock()

	logging.Info().Msg("Starting automatic sync")
	steps := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{StepEvents, j.syncEvents},
		{StepAlerts, j.seedAlerts},
		{StepResearch, j.seedResearch},
	}
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		inserted, err := step.fn(ctx)
		metrics.RecordSyncStep(step.name, inserted, err)
		if err != nil {
			logging.Error().Err(err).Str("step", step.name).Msg("Sync step failed")
		} else {
			logging.Info().Str("step", step.name).Int("inserted", inserted).Msg("Sync step done")
		}
		results = append(results, StepResult{Step: step.name, Inserted: inserted, Err: err})
	}
	logging.Info().Msg("Automatic sync finished")
	return results
}

func (j *Job) syncEvents(ctx context.Context) (int, error) {
	events, err := j.events.Events(ctx)
	if err != nil {
		return 0, err
	}
	projects := make([]*store.UrbanismProject, 0, len(events))
	for _, event := range events {
		project := &store.UrbanismProject{
			Title:       event.Title,
			Description: event.Description,
			Status:      store.UrbanismStatusOpen,
		}
		if event.Date != nil {
			project.CreatedAt = *event.Date
		}
		projects = append(projects, project)
	}
	return j.store.AddUrbanismProjectsByTitle(ctx, projects)
}

var sampleAlerts = []struct {
	kind, description string
	risk              int
}{
	{"Intrusion", "Détection d'une intrusion sur site", 7},
	{"Incendie", "Début d'incendie détecté", 9},
	{"Comportement suspect", "Individu observé en zone sensible", 5},
}

func (j *Job) seedAlerts(ctx context.Context) (int, error) {
	count, err := j.store.CountAlerts(ctx, "")
	if err != nil || count > 0 {
		return 0, err
	}
	now := j.now().UTC()
	alerts := make([]*store.SuspectAlert, 0, len(sampleAlerts))
	for _, sample := range sampleAlerts {
		alerts = append(alerts, &store.SuspectAlert{
			Type:        sample.kind,
			Description: sample.description,
			Location: store.GeoPoint{
				Lat: seedLat + j.faker.Float64Range(-seedJitter, seedJitter),
				Lng: seedLng + j.faker.Float64Range(-seedJitter, seedJitter),
			},
			RiskLevel:  sample.risk,
			Status:     store.AlertStatusNew,
			ReportedAt: now,
		})
	}
	if err := j.store.CreateAlerts(ctx, alerts...); err != nil {
		return 0, err
	}
	return len(alerts), nil
}

func (j *Job) seedResearch(ctx context.Context) (int, error) {
	count, err := j.store.CountResearchProjects(ctx, "")
	if err != nil || count > 0 {
		return 0, err
	}
	projects := []*store.ResearchProject{
		{Title: "Analyse du trafic", Description: "Étude sur la fluidité des routes", Status: store.ResearchStatusInProgress},
		{Title: "Étude sécurité", Description: "Analyse des incidents survenus en 2024", Status: store.ResearchStatusInProgress},
	}
	if err := j.store.CreateResearchProjects(ctx, projects...); err != nil {
		return 0, err
	}
	return len(projects), nil
}

// Start runs the job once in the background and then every interval until
// Stop is called.
func (j *Job) Start(ctx context.Context, interval time.Duration) error {
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { j.Run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	j.cron = c
	c.Start()
	j.initial.Add(1)
	go func() {
		defer j.initial.Done()
		j.Run(ctx)
	}()
	logging.Info().Dur("interval", interval).Msg("Automatic sync scheduled")
	return nil
}

// Stop stops the schedule and waits for a running sync to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.initial.Wait()
}

// cronLogger routes the scheduler's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
