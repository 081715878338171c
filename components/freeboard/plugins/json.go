package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// JSONTypeName is the type name of the HTTP JSON datasource.
const JSONTypeName = "JSON"

// JSONDescriptor describes a datasource polling a URL. JSON responses are
// decoded, anything else is published as text.
func JSONDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    JSONTypeName,
		DisplayName: "JSON",
		Settings: []freeboard.SettingDefinition{
			{Name: "url", DisplayName: "URL", Type: freeboard.SettingText, Required: true},
			refreshSetting("refresh", 5),
			{Name: "method", DisplayName: "Method", Type: freeboard.SettingOptionType, Options: []freeboard.SettingOption{
				{Name: "GET", Value: http.MethodGet},
				{Name: "POST", Value: http.MethodPost},
				{Name: "PUT", Value: http.MethodPut},
				{Name: "DELETE", Value: http.MethodDelete},
			}},
			{Name: "body", DisplayName: "Body", Type: freeboard.SettingText, Description: "The body of the request. Normally only used if method is POST"},
			{Name: "headers", DisplayName: "Headers", Type: freeboard.SettingArray, Settings: []freeboard.SettingDefinition{
				{Name: "name", DisplayName: "Name", Type: freeboard.SettingText},
				{Name: "value", DisplayName: "Value", Type: freeboard.SettingText},
			}},
		},
		NewDatasource: func(ctx context.Context, settings freeboard.Settings, ready func(freeboard.DatasourceInstance), update freeboard.UpdateFunc) {
			j := &jsonDatasource{
				ctx:      ctx,
				client:   opts.HTTPClient,
				log:      opts.Logger.WithField("datasource_type", JSONTypeName),
				update:   update,
				settings: settings,
			}
			j.poll = newPoller(ctx, seconds(settings, "refresh", 5), j.refresh)
			ready(j)
		},
	}
}

type jsonDatasource struct {
	ctx    context.Context
	client *http.Client
	log    logrus.FieldLogger
	update freeboard.UpdateFunc
	poll   *poller

	mu       sync.Mutex
	settings freeboard.Settings
}

// UpdateNow starts a request without blocking the caller.
func (j *jsonDatasource) UpdateNow() {
	go j.refresh()
}

func (j *jsonDatasource) refresh() {
	j.mu.Lock()
	settings := j.settings.Clone()
	j.mu.Unlock()
	data, err := j.fetch(settings)
	if err != nil {
		j.log.WithError(err).Warn("json datasource request failed")
		return
	}
	j.update(data)
}

func (j *jsonDatasource) fetch(settings freeboard.Settings) (any, error) {
	url := stringSetting(settings, "url", "")
	if url == "" {
		return nil, fmt.Errorf("plugins: json datasource url is empty")
	}
	method := strings.ToUpper(stringSetting(settings, "method", http.MethodGet))
	var body io.Reader
	if raw := stringSetting(settings, "body", ""); raw != "" {
		body = strings.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(j.ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil && json.Valid([]byte(stringSetting(settings, "body", ""))) {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range requestHeaders(settings["headers"]) {
		req.Header.Set(name, value)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plugins: %s %s returned %d", method, url, resp.StatusCode)
	}
	return decodePayload(payload), nil
}

func (j *jsonDatasource) OnSettingsChanged(settings freeboard.Settings) {
	j.mu.Lock()
	j.settings = settings
	j.mu.Unlock()
	j.poll.setInterval(seconds(settings, "refresh", 5))
	j.UpdateNow()
}

func (j *jsonDatasource) OnDispose() {
	j.poll.close()
}

// requestHeaders reads the array setting of {name, value} rows.
func requestHeaders(raw any) map[string]string {
	out := map[string]string{}
	add := func(row map[string]any) {
		name, _ := row["name"].(string)
		value, _ := row["value"].(string)
		if name != "" {
			out[name] = value
		}
	}
	switch rows := raw.(type) {
	case []any:
		for _, r := range rows {
			if row, ok := r.(map[string]any); ok {
				add(row)
			}
		}
	case []map[string]any:
		for _, row := range rows {
			add(row)
		}
	}
	return out
}

// decodePayload returns decoded JSON, or the trimmed text when the payload
// is not JSON.
func decodePayload(payload []byte) any {
	if !json.Valid(payload) {
		return strings.TrimSpace(string(payload))
	}
	var data any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return strings.TrimSpace(string(payload))
	}
	return normalizeNumbers(data)
}

// normalizeNumbers turns json.Number into int64 or float64 so expressions
// see plain numbers.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}
