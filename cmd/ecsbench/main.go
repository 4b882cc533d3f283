// ecsbench drives joins, schedules and maintain over a synthetic world for profiling.
//
//	go build ./cmd/ecsbench
//	./ecsbench --entities 100000 --frames 500 --profile cpu
//	go tool pprof -http=":8000" ./ecsbench cpu.pprof
package main

import (
	"context"
	"os"
	"time"

	"github.com/funnisimo/goblinwerks/pkg/ecs"
	"github.com/funnisimo/goblinwerks/pkg/telemetry"
	"github.com/funnisimo/goblinwerks/pkg/telemetry/sentry"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type position struct {
	X, Y int64
}

type velocity struct {
	DX, DY int64
}

type frozen struct{}

type frameStats struct {
	Moved int
}

func main() {
	tel, err := telemetry.New(telemetry.Options{ServiceName: "ecsbench"})
	if err != nil {
		globalLogger := telemetry.GetGlobalLogger("ecsbench")
		globalLogger.Fatal().Err(err).Msg("failed to init telemetry")
	}
	defer sentry.RecoverAndFlush()
	logger := tel.GetLogger("main")

	flags := pflag.NewFlagSet("ecsbench", pflag.ExitOnError)
	entities := flags.IntP("entities", "n", 100_000, "number of entities to spawn")
	frames := flags.IntP("frames", "f", 500, "number of frames to run")
	churn := flags.Float64("churn", 0.01, "fraction of entities deleted and respawned each frame")
	mode := flags.String("mode", "parallel", "stage execution mode: parallel or sequential")
	prof := flags.String("profile", "none", "profile to capture: cpu, mem or none")
	out := flags.String("profile-path", ".", "directory for profile output")
	where := flags.String("where", "", "expr filter to search the final world with, e.g. 'position.X > 10'")
	dump := flags.String("dump", "", "write a msgpack snapshot of the final world to this file")
	_ = flags.Parse(os.Args[1:])

	switch *prof {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*out), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath(*out), profile.NoShutdownHook).Stop()
	}

	cfg := benchConfig{
		entities: *entities,
		frames:   *frames,
		churn:    *churn,
		mode:     ecs.ParseExecutionMode(*mode),
		where:    *where,
		dump:     *dump,
		logger:   &tel.Logger,
	}

	start := time.Now()
	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("bench failed")
	}
	logger.Info().
		Int("entities", *entities).
		Int("frames", *frames).
		Dur("took", time.Since(start)).
		Dur("per_frame", time.Since(start)/time.Duration(max(*frames, 1))).
		Msg("bench finished")
}

type benchConfig struct {
	entities int
	frames   int
	churn    float64
	mode     ecs.ExecutionMode
	where    string
	dump     string
	logger   *zerolog.Logger
}

func run(cfg benchConfig) error {
	entityCount := cfg.entities
	w, err := ecs.NewWorld(ecs.WorldOptions{
		ID:                    "ecsbench",
		ExecutionMode:         cfg.mode,
		InitialEntityCapacity: entityCount,
		Logger:                cfg.logger,
	})
	if err != nil {
		return eris.Wrap(err, "failed to create world")
	}
	defer w.Close()

	ecs.Register[position](w)
	ecs.Register[velocity](w)
	ecs.Register[frozen](w)
	ecs.EnsureResource[frameStats](w)

	live := make([]ecs.Entity, 0, entityCount)
	for i := range entityCount {
		b := w.CreateEntity().With(position{}).With(velocity{DX: 1, DY: int64(i % 3)})
		if i%10 == 0 {
			b.With(frozen{})
		}
		live = append(live, b.Build())
	}

	schedule := ecs.NewSchedule()
	if err := schedule.AddSystem("update", ecs.NewSystem(moveSystem,
		ecs.WritesComponent[position](), ecs.ReadsComponent[velocity](),
		ecs.ReadsComponent[frozen](), ecs.WritesResource[frameStats](),
	)); err != nil {
		return err
	}
	if err := schedule.AddSystem("update", ecs.NewSystem(changedSystem,
		ecs.ReadsComponent[velocity](),
	)); err != nil {
		return err
	}
	if err := schedule.Build(); err != nil {
		return err
	}

	toChurn := int(float64(entityCount) * cfg.churn)
	ctx := context.Background()
	for frame := range cfg.frames {
		if err := schedule.Run(ctx, w); err != nil {
			return eris.Wrapf(err, "frame %d", frame)
		}
		for i := range toChurn {
			slot := (frame*toChurn + i) % len(live)
			if err := w.DeleteEntity(live[slot]); err != nil {
				return eris.Wrap(err, "failed to delete entity")
			}
			live[slot] = w.Spawn(position{}, velocity{DX: 1})
		}
		w.Maintain()
	}

	return inspect(w, cfg)
}

// inspect runs the optional search and snapshot dump over the final world.
func inspect(w *ecs.World, cfg benchConfig) error {
	if cfg.where != "" {
		rows, err := w.Search(ecs.SearchParam{Find: []string{"main.position"}, Where: cfg.where})
		if err != nil {
			return eris.Wrap(err, "search failed")
		}
		cfg.logger.Info().Str("where", cfg.where).Int("matched", len(rows)).Msg("search finished")
	}
	if cfg.dump != "" {
		data, err := w.DebugSnapshotMsgpack()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.dump, data, 0o600); err != nil {
			return eris.Wrapf(err, "failed to write %s", cfg.dump)
		}
	}
	return nil
}

func moveSystem(ctx *ecs.SystemContext) error {
	positions := ecs.WriteComponent[position](ctx)
	defer positions.Release()
	velocities := ecs.ReadComponent[velocity](ctx)
	defer velocities.Release()
	frozens := ecs.ReadComponent[frozen](ctx)
	defer frozens.Release()

	moved := 0
	for _, row := range ecs.Join2(positions, velocities, ecs.Not(frozens)) {
		vel := row.B.Get()
		pos := row.A.Ptr()
		pos.X += vel.DX
		pos.Y += vel.DY
		moved++
	}

	stats := ecs.WriteResource[frameStats](ctx)
	defer stats.Release()
	stats.Set(frameStats{Moved: moved})
	return nil
}

func changedSystem(ctx *ecs.SystemContext) error {
	velocities := ecs.ReadComponent[velocity](ctx)
	defer velocities.Release()

	added := 0
	for _, vel := range ecs.Join1(velocities) {
		if vel.IsAdded() {
			added++
		}
	}
	ctx.Logger().Trace().Int("added", added).Msg("velocities added since last run")
	return nil
}
