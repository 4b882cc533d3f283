package ecs

import (
	"context"
	"slices"
	"time"

	"github.com/funnisimo/goblinwerks/pkg/statsd"
	"github.com/funnisimo/goblinwerks/pkg/telemetry"
	"github.com/funnisimo/goblinwerks/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Stage is a set of systems whose declared accesses are pairwise compatible, so they may run
// concurrently.
type Stage struct {
	name    string
	systems []*System
	access  stageAccess
}

func NewStage(name string) *Stage {
	return &Stage{name: name, access: newStageAccess(name)}
}

func (s *Stage) Name() string {
	return s.name
}

// Add admits sys if none of its accesses conflict with a system already in the stage. A rejected
// system leaves the stage unchanged and returns a *ConflictError.
func (s *Stage) Add(sys *System) error {
	if err := s.access.check(sys.meta); err != nil {
		return err
	}
	s.access.add(sys.meta)
	s.systems = append(s.systems, sys)
	return nil
}

// Systems returns the names of the stage's systems in the order they were added.
func (s *Stage) Systems() []string {
	names := make([]string, len(s.systems))
	for i, sys := range s.systems {
		names[i] = sys.Name()
	}
	return names
}

// Schedule runs stages in order. Systems inside a stage run concurrently when the world allows
// it, otherwise in the order they were added.
type Schedule struct {
	stages []*Stage
	names  map[string]struct{}
	built  bool
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewSchedule() *Schedule {
	return &Schedule{
		stages: make([]*Stage, 0),
		names:  make(map[string]struct{}),
		tracer: otel.Tracer("schedule"),
		logger: telemetry.GetGlobalLogger("schedule"),
	}
}

// AddStage appends an empty stage. Stage names are unique.
func (s *Schedule) AddStage(name string) error {
	if s.built {
		return eris.Wrapf(ErrScheduleBuilt, "cannot add stage %q", name)
	}
	if s.stage(name) != nil {
		return eris.Errorf("stage %q already exists", name)
	}
	s.stages = append(s.stages, NewStage(name))
	return nil
}

// AddSystem adds sys to the named stage, creating the stage at the end if it does not exist yet.
// System names are unique across the schedule.
func (s *Schedule) AddSystem(stageName string, sys *System) error {
	if s.built {
		return eris.Wrapf(ErrScheduleBuilt, "cannot add system %q", sys.Name())
	}
	if _, ok := s.names[sys.Name()]; ok {
		return eris.Wrapf(ErrDuplicateSystem, "system %q", sys.Name())
	}

	stage := s.stage(stageName)
	created := stage == nil
	if created {
		stage = NewStage(stageName)
	}
	if err := stage.Add(sys); err != nil {
		return err
	}
	if created {
		s.stages = append(s.stages, stage)
	}
	s.names[sys.Name()] = struct{}{}
	return nil
}

// Build freezes the schedule. It may be called more than once.
func (s *Schedule) Build() error {
	if s.built {
		return nil
	}
	s.built = true
	for _, stage := range s.stages {
		s.logger.Debug().
			Str("stage", stage.name).
			Strs("systems", stage.Systems()).
			Str("access", stage.access.describe()).
			Msg("stage built")
	}
	return nil
}

func (s *Schedule) Stages() []string {
	names := make([]string, len(s.stages))
	for i, stage := range s.stages {
		names[i] = stage.name
	}
	return names
}

// Systems returns the system names of a stage, or nil if there is no such stage.
func (s *Schedule) Systems(stageName string) []string {
	if stage := s.stage(stageName); stage != nil {
		return stage.Systems()
	}
	return nil
}

func (s *Schedule) stage(name string) *Stage {
	idx := slices.IndexFunc(s.stages, func(st *Stage) bool { return st.name == name })
	if idx < 0 {
		return nil
	}
	return s.stages[idx]
}

// Run executes every stage against w. The first failing stage stops the run. In parallel mode
// every system of the failing stage still runs to completion.
func (s *Schedule) Run(ctx context.Context, w *World) error {
	if !s.built {
		return eris.New("schedule must be built before it runs")
	}

	ctx, span := s.tracer.Start(ctx, "schedule.run")
	defer span.End()

	for _, stage := range s.stages {
		if err := s.runStage(ctx, w, stage); err != nil {
			span.SetStatus(codes.Error, eris.ToString(err, true))
			span.RecordError(err)
			sentry.CaptureError(ctx, err, map[string]string{"world": w.id, "stage": stage.name})
			return err
		}
	}
	return nil
}

func (s *Schedule) runStage(ctx context.Context, w *World, stage *Stage) error {
	start := time.Now()
	defer statsd.EmitTickStat(start, stage.name)

	ctx, span := s.tracer.Start(ctx, "schedule.stage."+stage.name)
	defer span.End()

	var err error
	if w.options.ExecutionMode == ExecutionParallel && len(stage.systems) > 1 {
		g := new(errgroup.Group)
		for _, sys := range stage.systems {
			g.Go(func() error {
				return s.runSystem(ctx, w, sys)
			})
		}
		err = g.Wait()
	} else {
		for _, sys := range stage.systems {
			if err = s.runSystem(ctx, w, sys); err != nil {
				break
			}
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrapf(err, "stage %s failed", stage.name)
	}
	return nil
}

func (s *Schedule) runSystem(ctx context.Context, w *World, sys *System) error {
	ctx, span := s.tracer.Start(ctx, "system."+sys.Name())
	defer span.End()

	logger := w.logger.With().Str("system", sys.Name()).Logger()
	if err := sys.run(ctx, w, logger); err != nil {
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrapf(err, "system %s failed", sys.Name())
	}
	return nil
}
