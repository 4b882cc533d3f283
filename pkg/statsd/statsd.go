// Package statsd wraps the handful of DataDog statsd calls the runtime makes so the rest of the
// code never imports the client directly.
package statsd

import (
	"strings"
	"sync"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const namespace = "goblinwerks"

var (
	mu     sync.RWMutex                                     //nolint:gochecknoglobals // process-wide client
	client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{} //nolint:gochecknoglobals // process-wide client
)

func Client() ddstatsd.ClientInterface {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// SetClient swaps the process-wide client. Passing nil restores the no-op client.
func SetClient(c ddstatsd.ClientInterface) {
	mu.Lock()
	defer mu.Unlock()
	if c == nil {
		c = &ddstatsd.NoOpClient{}
	}
	client = c
}

// EmitTickStat records how long a stage of the tick took, tagged with the stage name.
func EmitTickStat(start time.Time, stage string) {
	duration := time.Since(start)
	if err := Client().Timing("tick", duration, []string{StageTag(stage)}, 1); err != nil {
		log.Logger.Warn().Err(err).Str("stage", stage).Msg("failed to emit tick stat")
	}
}

// StageTag renders a stage name as a statsd tag.
func StageTag(stage string) string {
	return "stage:" + strings.ReplaceAll(strings.TrimSpace(stage), " ", "_")
}

// Init replaces the no-op client with one that sends to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace(namespace),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrapf(err, "failed to create statsd client for %s", address)
	}
	SetClient(newClient)
	return nil
}
