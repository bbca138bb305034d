package mesh

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/odfpeaks/peaks"
)

func testMQTTConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{Broker: "tcp://localhost:1883", PublishPrefix: "lab"},
		Sources: []SourceConfig{
			{ID: "scanner1", Topic: "dmri/scanner1/odf"},
			{ID: "scanner2", Topic: "dmri/scanner2/odf", Sphere: "oct"},
		},
	}
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{
		Sources: []SourceConfig{{ID: "test", Topic: "test/topic"}},
	}

	client, err := InitMQTT(config, func(string, []byte, *OdfSample, error) {})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoSources(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{
		MQTT: MQTTConfig{Broker: "tcp://localhost:1883"},
	}

	_, err := InitMQTT(config, func(string, []byte, *OdfSample, error) {})
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected())

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_GetSourceByTopic(t *testing.T) {
	client := &MQTTClient{config: testMQTTConfig()}

	tests := []struct {
		name   string
		topic  string
		wantID string
		wantOK bool
	}{
		{"first source", "dmri/scanner1/odf", "scanner1", true},
		{"second source", "dmri/scanner2/odf", "scanner2", true},
		{"unknown topic", "unknown/topic", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotOK := client.GetSourceByTopic(tt.topic)
			assert.Equal(t, tt.wantID, gotID)
			assert.Equal(t, tt.wantOK, gotOK)
		})
	}
}

func TestOnConnect_Subscribes(t *testing.T) {
	fake := newFakeClient(true)
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)

	client.onConnect(fake)

	assert.True(t, client.IsConnected())
	assert.ElementsMatch(t,
		[]string{"dmri/scanner1/odf", "dmri/scanner2/odf", "lab/params/set"},
		fake.topics())
}

func TestOnConnect_SubscribeErrorIsLogged(t *testing.T) {
	fake := newFakeClient(true)
	fake.subscribeErr = errors.New("denied")
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)

	client.onConnect(fake)

	assert.True(t, client.IsConnected())
	assert.Empty(t, fake.topics())
}

func TestMessageHandler_DecodesSample(t *testing.T) {
	fake := newFakeClient(true)

	var (
		mu      sync.Mutex
		gotID   string
		gotErr  error
		gotSamp *OdfSample
	)
	handler := func(sourceID string, raw []byte, sample *OdfSample, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotID, gotSamp, gotErr = sourceID, sample, err
	}

	client := newMQTTClientWithMock(fake, testMQTTConfig(), handler)
	client.onConnect(fake)

	payload := zlibCompress(t, []byte(`{"sphere":"oct","values":[1,0,0,0,0,0]}`))
	require.True(t, fake.deliver("dmri/scanner1/odf", payload))

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, gotErr)
	assert.Equal(t, "scanner1", gotID)
	require.NotNil(t, gotSamp)
	assert.Equal(t, "scanner1", gotSamp.Source, "source defaults to the subscription")
	assert.Equal(t, "oct", gotSamp.Sphere)
	assert.Len(t, gotSamp.Values, 6)
}

func TestMessageHandler_DecodeError(t *testing.T) {
	fake := newFakeClient(true)

	var gotErr error
	var gotRaw []byte
	client := newMQTTClientWithMock(fake, testMQTTConfig(), func(_ string, raw []byte, sample *OdfSample, err error) {
		gotRaw, gotErr = raw, err
		assert.Nil(t, sample)
	})
	client.onConnect(fake)

	fake.deliver("dmri/scanner2/odf", []byte("garbage"))

	assert.Error(t, gotErr)
	assert.Equal(t, []byte("garbage"), gotRaw)
}

func TestParamsControlTopic(t *testing.T) {
	assert.Equal(t, "lab/params/set", ParamsControlTopic("lab"))
	assert.Equal(t, "odfpeaks/params/set", ParamsControlTopic(""))
}

func TestParseParamsPayload(t *testing.T) {
	current := peaks.DefaultParams()

	tests := []struct {
		name    string
		payload string
		want    peaks.Params
		wantErr bool
	}{
		{
			name:    "partial update",
			payload: `{"minSeparationAngle": 30}`,
			want:    peaks.Params{RelativePeakThreshold: 0.5, MinSeparationAngle: 30},
		},
		{
			name:    "full update",
			payload: `{"relativePeakThreshold": 0.2, "minSeparationAngle": 10, "maxPeaks": 3}`,
			want:    peaks.Params{RelativePeakThreshold: 0.2, MinSeparationAngle: 10, MaxPeaks: 3},
		},
		{name: "invalid threshold", payload: `{"relativePeakThreshold": 2}`, wantErr: true},
		{name: "not json", payload: `docked`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParamsPayload([]byte(tt.payload), current)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, current, got, "current params are kept on error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParamsHandler(t *testing.T) {
	fake := newFakeClient(true)
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)
	client.onConnect(fake)

	// No handler registered: message is dropped.
	fake.deliver("lab/params/set", []byte(`{"maxPeaks": 2}`))

	var got []peaks.Params
	client.SetParamsHandler(func(p peaks.Params) { got = append(got, p) })

	fake.deliver("lab/params/set", []byte(`{"maxPeaks": 2}`))
	fake.deliver("lab/params/set", []byte(`{"minSeparationAngle": 120}`))

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].MaxPeaks)
}

func TestParamsHandler_Source(t *testing.T) {
	fake := newFakeClient(true)
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)
	client.onConnect(fake)

	live := peaks.Params{RelativePeakThreshold: 0.2, MinSeparationAngle: 10, MaxPeaks: 4}
	client.SetParamsSource(func() peaks.Params { return live })

	var got peaks.Params
	client.SetParamsHandler(func(p peaks.Params) { got = p })

	fake.deliver("lab/params/set", []byte(`{"minSeparationAngle": 30}`))

	assert.Equal(t, peaks.Params{RelativePeakThreshold: 0.2, MinSeparationAngle: 30, MaxPeaks: 4}, got)
}

func TestMQTTClient_Disconnect(t *testing.T) {
	fake := newFakeClient(true)
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)
	client.setConnected(true)

	client.Disconnect()

	assert.False(t, client.IsConnected())
	assert.False(t, fake.IsConnected())
}

func TestMQTTClient_GetClient(t *testing.T) {
	fake := newFakeClient(false)
	client := newMQTTClientWithMock(fake, testMQTTConfig(), nil)
	assert.Same(t, fake, client.GetClient())
}

func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client.setConnected(i%2 == 0)
			_ = client.IsConnected()
			client.SetParamsHandler(func(peaks.Params) {})
			_ = client.getParamsHandler()
		}(i)
	}
	wg.Wait()
}

func BenchmarkCreateMessageHandler(b *testing.B) {
	client := &MQTTClient{
		config:         testMQTTConfig(),
		messageHandler: func(string, []byte, *OdfSample, error) {},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.createMessageHandler("scanner1")
	}
}
