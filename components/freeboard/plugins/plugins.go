package plugins

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// Options carries the collaborators shared by the builtin plugins.
type Options struct {
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
	Now        func() time.Time
	// Seed makes the random datasource deterministic when non-zero.
	Seed int64
	// MQTTClient builds broker clients; defaults to mqtt.NewClient.
	MQTTClient func(*mqtt.ClientOptions) mqtt.Client
	// Charts caches rendered gauge and sparkline markup; nil disables caching.
	Charts *ChartCache
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger().WithField("component", "freeboard.plugins")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MQTTClient == nil {
		o.MQTTClient = mqtt.NewClient
	}
	return o
}

func (o Options) rand() *rand.Rand {
	seed := o.Seed
	if seed == 0 {
		seed = o.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Register installs every builtin plugin into reg and binds their factories
// under their type names so manifests can reference them.
func Register(reg *freeboard.Registry, opts Options) error {
	opts = opts.withDefaults()
	datasources := []freeboard.PluginDescriptor{
		ClockDescriptor(opts),
		RandomDescriptor(opts),
		JSONDescriptor(opts),
		MQTTDescriptor(opts),
		RedisDescriptor(opts),
	}
	for _, desc := range datasources {
		if err := reg.RegisterDatasourcePlugin(desc); err != nil {
			return fmt.Errorf("plugins: register %s: %w", desc.TypeName, err)
		}
		reg.BindDatasourceFactory(desc.TypeName, desc.NewDatasource)
	}
	widgets := []freeboard.PluginDescriptor{
		TextDescriptor(opts),
		GaugeDescriptor(opts),
		SparklineDescriptor(opts),
		IndicatorDescriptor(opts),
	}
	for _, desc := range widgets {
		if err := reg.RegisterWidgetPlugin(desc); err != nil {
			return fmt.Errorf("plugins: register %s: %w", desc.TypeName, err)
		}
		reg.BindWidgetFactory(desc.TypeName, desc.NewWidget)
	}
	return nil
}

// Hook returns a registry hook installing the builtins with opts.
func Hook(opts Options) freeboard.PluginHook {
	return func(reg *freeboard.Registry) error {
		return Register(reg, opts)
	}
}

// poller calls tick on an interval until closed or ctx is done. A zero
// interval disables the timer; UpdateNow still works.
type poller struct {
	tick  func()
	reset chan time.Duration
	stop  chan struct{}
	once  sync.Once
}

func newPoller(ctx context.Context, interval time.Duration, tick func()) *poller {
	p := &poller{
		tick:  tick,
		reset: make(chan time.Duration, 1),
		stop:  make(chan struct{}),
	}
	go p.run(ctx, interval)
	return p
}

func (p *poller) run(ctx context.Context, interval time.Duration) {
	var (
		ticker *time.Ticker
		ticks  <-chan time.Time
	)
	restart := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, ticks = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			ticks = ticker.C
		}
	}
	restart(interval)
	defer restart(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case d := <-p.reset:
			restart(d)
		case <-ticks:
			p.tick()
		}
	}
}

func (p *poller) setInterval(d time.Duration) {
	select {
	case <-p.reset:
	default:
	}
	select {
	case p.reset <- d:
	default:
	}
}

func (p *poller) close() {
	p.once.Do(func() { close(p.stop) })
}

func refreshSetting(name string, fallback float64) freeboard.SettingDefinition {
	return freeboard.SettingDefinition{
		Name:         name,
		DisplayName:  "Refresh Every",
		Type:         freeboard.SettingNumber,
		Suffix:       "seconds",
		DefaultValue: fallback,
	}
}

func seconds(settings freeboard.Settings, name string, fallback float64) time.Duration {
	return time.Duration(floatSetting(settings, name, fallback) * float64(time.Second))
}

func floatSetting(settings freeboard.Settings, name string, fallback float64) float64 {
	switch v := settings[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func intSetting(settings freeboard.Settings, name string, fallback int) int {
	return int(floatSetting(settings, name, float64(fallback)))
}

func stringSetting(settings freeboard.Settings, name, fallback string) string {
	switch v := settings[name].(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return fallback
}

func boolSetting(settings freeboard.Settings, name string, fallback bool) bool {
	switch v := settings[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// truthy follows loose boolean semantics for calculated values.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0" && !strings.EqualFold(v, "false")
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}
