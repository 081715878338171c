package plugins

import (
	"context"
	"time"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// ClockTypeName is the type name of the clock datasource.
const ClockTypeName = "clock"

// ClockDescriptor describes a datasource that publishes the current time.
func ClockDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    ClockTypeName,
		DisplayName: "Clock",
		Settings:    []freeboard.SettingDefinition{refreshSetting("refresh", 1)},
		NewDatasource: func(ctx context.Context, settings freeboard.Settings, ready func(freeboard.DatasourceInstance), update freeboard.UpdateFunc) {
			c := &clockDatasource{update: update, now: opts.Now}
			c.poll = newPoller(ctx, seconds(settings, "refresh", 1), c.UpdateNow)
			ready(c)
		},
	}
}

type clockDatasource struct {
	update freeboard.UpdateFunc
	now    func() time.Time
	poll   *poller
}

func (c *clockDatasource) UpdateNow() {
	t := c.now()
	c.update(map[string]any{
		"numeric_value":     t.UnixMilli(),
		"full_string_value": t.Format("1/2/2006, 3:04:05 PM"),
		"date_string_value": t.Format("1/2/2006"),
		"time_string_value": t.Format("3:04:05 PM"),
		"iso_string_value":  t.Format(time.RFC3339),
	})
}

func (c *clockDatasource) OnSettingsChanged(settings freeboard.Settings) {
	c.poll.setInterval(seconds(settings, "refresh", 1))
}

func (c *clockDatasource) OnDispose() {
	c.poll.close()
}
