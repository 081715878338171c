package plugins

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// RandomTypeName is the type name of the random datasource.
const RandomTypeName = "random"

// RandomDescriptor describes a datasource producing random numbers in a range.
// Values are formatted with the configured precision.
func RandomDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	refresh := refreshSetting("refresh", 1)
	refresh.Required = true
	return freeboard.PluginDescriptor{
		TypeName:    RandomTypeName,
		DisplayName: "Random",
		Settings: []freeboard.SettingDefinition{
			refresh,
			{Name: "num_values", DisplayName: "Number of Values", Description: "Number of random values to generate on each refresh interval", Type: freeboard.SettingNumber, DefaultValue: 1, Required: true},
			{Name: "precision", DisplayName: "Precision", Description: "Number of decimal places for each random value", Type: freeboard.SettingNumber, DefaultValue: 1, Required: true},
			{Name: "min_value", DisplayName: "Minimum", Description: "inclusive", Type: freeboard.SettingNumber, DefaultValue: 0, Required: true},
			{Name: "max_value", DisplayName: "Maximum", Description: "inclusive", Type: freeboard.SettingNumber, DefaultValue: 100, Required: true},
		},
		NewDatasource: func(ctx context.Context, settings freeboard.Settings, ready func(freeboard.DatasourceInstance), update freeboard.UpdateFunc) {
			r := &randomDatasource{update: update, rng: opts.rand(), settings: settings}
			r.poll = newPoller(ctx, seconds(settings, "refresh", 1), r.UpdateNow)
			ready(r)
		},
	}
}

type randomDatasource struct {
	update freeboard.UpdateFunc
	poll   *poller

	mu       sync.Mutex
	rng      *rand.Rand
	settings freeboard.Settings
}

func (r *randomDatasource) UpdateNow() {
	r.mu.Lock()
	values := r.generate()
	r.mu.Unlock()
	if len(values) == 1 {
		r.update(values[0])
		return
	}
	r.update(values)
}

func (r *randomDatasource) generate() []any {
	min := floatSetting(r.settings, "min_value", 0)
	max := floatSetting(r.settings, "max_value", 100)
	precision := intSetting(r.settings, "precision", 1)
	count := intSetting(r.settings, "num_values", 1)
	if count < 1 {
		count = 1
	}
	if precision < 0 {
		precision = 0
	}
	values := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v := math.Min(min+r.rng.Float64()*(max-min), max)
		values = append(values, strconv.FormatFloat(v, 'f', precision, 64))
	}
	return values
}

func (r *randomDatasource) OnSettingsChanged(settings freeboard.Settings) {
	r.mu.Lock()
	r.settings = settings
	r.mu.Unlock()
	r.poll.setInterval(seconds(settings, "refresh", 1))
}

func (r *randomDatasource) OnDispose() {
	r.poll.close()
}
