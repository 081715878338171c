package plugins

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// MQTTTypeName is the type name of the MQTT datasource.
const MQTTTypeName = "mqtt"

const mqttDisconnectQuiesce = 250

// MQTTDescriptor describes a datasource subscribed to a broker topic. Each
// message becomes the datasource value.
func MQTTDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    MQTTTypeName,
		DisplayName: "MQTT",
		Description: "Receive messages published to an MQTT topic.",
		Settings: []freeboard.SettingDefinition{
			{Name: "server", DisplayName: "Broker", Type: freeboard.SettingText, Required: true, Description: "Broker URL, e.g. tcp://localhost:1883"},
			{Name: "topic", DisplayName: "Topic", Type: freeboard.SettingText, Required: true},
			{Name: "client_id", DisplayName: "Client ID", Type: freeboard.SettingText},
			{Name: "username", DisplayName: "Username", Type: freeboard.SettingText},
			{Name: "password", DisplayName: "Password", Type: freeboard.SettingText},
			{Name: "qos", DisplayName: "QoS", Type: freeboard.SettingOptionType, DefaultValue: 0, Options: []freeboard.SettingOption{
				{Name: "At most once", Value: 0},
				{Name: "At least once", Value: 1},
				{Name: "Exactly once", Value: 2},
			}},
			{Name: "json_data", DisplayName: "JSON messages?", Type: freeboard.SettingBoolean, DefaultValue: true},
		},
		NewDatasource: func(ctx context.Context, settings freeboard.Settings, ready func(freeboard.DatasourceInstance), update freeboard.UpdateFunc) {
			m := &mqttDatasource{
				newClient: opts.MQTTClient,
				log:       opts.Logger.WithField("datasource_type", MQTTTypeName),
				update:    update,
			}
			m.connect(settings)
			ready(m)
		},
	}
}

type mqttDatasource struct {
	newClient func(*mqtt.ClientOptions) mqtt.Client
	log       logrus.FieldLogger
	update    freeboard.UpdateFunc

	mu       sync.Mutex
	client   mqtt.Client
	settings freeboard.Settings
	last     any
	hasLast  bool
}

func (m *mqttDatasource) connect(settings freeboard.Settings) {
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	clientID := stringSetting(settings, "client_id", "")
	if clientID == "" {
		clientID = "freeboard-" + uuid.NewString()[:8]
	}
	topic := stringSetting(settings, "topic", "")
	qos := byte(intSetting(settings, "qos", 0))
	log := m.log.WithFields(logrus.Fields{"broker": stringSetting(settings, "server", ""), "topic": topic})

	opts := mqtt.NewClientOptions().
		AddBroker(stringSetting(settings, "server", "")).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if user := stringSetting(settings, "username", ""); user != "" {
		opts.SetUsername(user)
		opts.SetPassword(stringSetting(settings, "password", ""))
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(topic, qos, m.onMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				log.WithError(err).Warn("mqtt subscribe failed")
				return
			}
			log.Debug("mqtt subscribed")
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	client := m.newClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	token := client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).Warn("mqtt connect failed")
		}
	}()
}

func (m *mqttDatasource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.mu.Lock()
	jsonData := boolSetting(m.settings, "json_data", true)
	m.mu.Unlock()

	var data any
	if jsonData {
		data = decodePayload(msg.Payload())
	} else {
		data = string(msg.Payload())
	}
	m.mu.Lock()
	m.last, m.hasLast = data, true
	m.mu.Unlock()
	m.update(data)
}

// UpdateNow republishes the last received message.
func (m *mqttDatasource) UpdateNow() {
	m.mu.Lock()
	data, ok := m.last, m.hasLast
	m.mu.Unlock()
	if ok {
		m.update(data)
	}
}

func (m *mqttDatasource) OnSettingsChanged(settings freeboard.Settings) {
	m.disconnect()
	m.connect(settings)
}

func (m *mqttDatasource) OnDispose() {
	m.disconnect()
}

func (m *mqttDatasource) disconnect() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		client.Disconnect(mqttDisconnectQuiesce)
	}
}
