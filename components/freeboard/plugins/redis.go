package plugins

import (
	"context"
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// RedisTypeName is the type name of the redis datasource.
const RedisTypeName = "redis"

const (
	redisModeSubscribe = "subscribe"
	redisModeGet       = "get"
)

// RedisDescriptor describes a datasource fed by a redis channel subscription
// or by polling a key.
func RedisDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    RedisTypeName,
		DisplayName: "Redis",
		Description: "Subscribe to a redis channel or poll a key.",
		Settings: []freeboard.SettingDefinition{
			{Name: "address", DisplayName: "Address", Type: freeboard.SettingText, Required: true, DefaultValue: "localhost:6379"},
			{Name: "password", DisplayName: "Password", Type: freeboard.SettingText},
			{Name: "db", DisplayName: "Database", Type: freeboard.SettingNumber, DefaultValue: 0},
			{Name: "mode", DisplayName: "Mode", Type: freeboard.SettingOptionType, DefaultValue: redisModeSubscribe, Options: []freeboard.SettingOption{
				{Name: "Subscribe to channel", Value: redisModeSubscribe},
				{Name: "Poll key", Value: redisModeGet},
			}},
			{Name: "channel", DisplayName: "Channel or key", Type: freeboard.SettingText, Required: true},
			refreshSetting("refresh", 5),
			{Name: "json_data", DisplayName: "JSON messages?", Type: freeboard.SettingBoolean, DefaultValue: true},
		},
		NewDatasource: func(ctx context.Context, settings freeboard.Settings, ready func(freeboard.DatasourceInstance), update freeboard.UpdateFunc) {
			r := &redisDatasource{
				parent: ctx,
				log:    opts.Logger.WithField("datasource_type", RedisTypeName),
				update: update,
			}
			r.start(settings)
			ready(r)
		},
	}
}

type redisDatasource struct {
	parent context.Context
	log    logrus.FieldLogger
	update freeboard.UpdateFunc

	mu       sync.Mutex
	settings freeboard.Settings
	client   *redis.Client
	cancel   context.CancelFunc
	poll     *poller
}

func (r *redisDatasource) start(settings freeboard.Settings) {
	ctx, cancel := context.WithCancel(r.parent)
	client := redis.NewClient(&redis.Options{
		Addr:     stringSetting(settings, "address", "localhost:6379"),
		Password: stringSetting(settings, "password", ""),
		DB:       intSetting(settings, "db", 0),
	})
	r.mu.Lock()
	r.settings = settings
	r.client = client
	r.cancel = cancel
	r.mu.Unlock()

	channel := stringSetting(settings, "channel", "")
	log := r.log.WithField("channel", channel)
	if stringSetting(settings, "mode", redisModeSubscribe) == redisModeGet {
		poll := newPoller(ctx, seconds(settings, "refresh", 5), func() { r.get(ctx, client, channel, log) })
		r.mu.Lock()
		r.poll = poll
		r.mu.Unlock()
		return
	}
	go r.subscribe(ctx, client, channel, log)
}

func (r *redisDatasource) subscribe(ctx context.Context, client *redis.Client, channel string, log logrus.FieldLogger) {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("redis subscribe failed")
		}
		return
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.publish([]byte(msg.Payload))
		}
	}
}

func (r *redisDatasource) get(ctx context.Context, client *redis.Client, key string, log logrus.FieldLogger) {
	value, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return
		}
		log.WithError(err).Warn("redis get failed")
		return
	}
	r.publish(value)
}

func (r *redisDatasource) publish(payload []byte) {
	r.mu.Lock()
	jsonData := boolSetting(r.settings, "json_data", true)
	r.mu.Unlock()
	if jsonData {
		r.update(decodePayload(payload))
		return
	}
	r.update(string(payload))
}

// UpdateNow polls the key immediately in get mode.
func (r *redisDatasource) UpdateNow() {
	r.mu.Lock()
	settings, client := r.settings, r.client
	r.mu.Unlock()
	if client == nil || stringSetting(settings, "mode", redisModeSubscribe) != redisModeGet {
		return
	}
	key := stringSetting(settings, "channel", "")
	go r.get(r.parent, client, key, r.log.WithField("channel", key))
}

func (r *redisDatasource) OnSettingsChanged(settings freeboard.Settings) {
	r.stop()
	r.start(settings)
}

func (r *redisDatasource) OnDispose() {
	r.stop()
}

func (r *redisDatasource) stop() {
	r.mu.Lock()
	cancel, client, poll := r.cancel, r.client, r.poll
	r.cancel, r.client, r.poll = nil, nil, nil
	r.mu.Unlock()
	if poll != nil {
		poll.close()
	}
	if cancel != nil {
		cancel()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			r.log.WithError(err).Debug("redis close failed")
		}
	}
}
