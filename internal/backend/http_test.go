package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-key", 2*time.Second)
}

func TestGetStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"current_session": map[string]interface{}{"id": 3},
			"taps":            []interface{}{},
		})
	})

	status, err := client.GetStatus()
	require.NoError(t, err)
	assert.NotNil(t, status["current_session"])
}

func TestGetAllTaps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taps", r.URL.Path)
		json.NewEncoder(w).Encode([]TapDescriptor{
			{MeterName: "kegboard.flow0", MLPerTick: 2.2, RelayName: "relay0"},
		})
	})

	taps, err := client.GetAllTaps()
	require.NoError(t, err)
	require.Len(t, taps, 1)
	assert.Equal(t, "kegboard.flow0", taps[0].MeterName)
}

func TestRecordDrink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taps/kegboard.flow0/drinks", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 500, body["ticks"])
		assert.Equal(t, "alice", body["username"])
		assert.EqualValues(t, 30, body["duration"])
		assert.Equal(t, false, body["spilled"])

		json.NewEncoder(w).Encode(Drink{ID: 42, Ticks: 500, VolumeML: 1100, Username: "alice"})
	})

	vol := 1100.0
	drink, err := client.RecordDrink(DrinkRequest{
		MeterName: "kegboard.flow0",
		Ticks:     500,
		VolumeML:  &vol,
		Username:  "alice",
		PourTime:  time.Unix(1700000030, 0),
		Duration:  30 * time.Second,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, drink.ID)
}

func TestRecordDrinkNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such meter", http.StatusNotFound)
	})

	_, err := client.RecordDrink(DrinkRequest{MeterName: "ghost", Ticks: 10})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetStatus()
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
}

func TestTransportErrorIsTransient(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", 200*time.Millisecond)

	_, err := client.GetStatus()
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindTransport, be.Kind)
}

func TestGetAuthToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth-tokens/core.onewire/deadbeef", r.URL.Path)
		json.NewEncoder(w).Encode(AuthToken{
			AuthDevice: "core.onewire",
			TokenValue: "deadbeef",
			Username:   "bob",
			Enabled:    true,
		})
	})

	token, err := client.GetAuthToken("core.onewire", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "bob", token.Username)
	assert.True(t, token.Enabled)
}

func TestGetAuthTokenUnknownIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := client.GetAuthToken("core.onewire", "stranger")
	assert.True(t, IsNotFound(err))
}

func TestGetAuthTokenTransportMapsToNotFound(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", 200*time.Millisecond)

	_, err := client.GetAuthToken("core.onewire", "deadbeef")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "lookup trouble treats the token as unassigned")
}

func TestCreateControllerAlsoCreatesDefaultMeters(t *testing.T) {
	var meterNames []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/controllers":
			json.NewEncoder(w).Encode(Controller{ID: 5, Name: "kegboard"})
		case "/controllers/5/flow-meters":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			meterNames = append(meterNames, body["name"].(string))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	controller, err := client.CreateController("kegboard")
	require.NoError(t, err)
	assert.EqualValues(t, 5, controller.ID)
	assert.Equal(t, []string{"flow0", "flow1"}, meterNames)
}

func TestLogSensorReading(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/thermo-sensors/kegerator/logs", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 4.5, body["temp_c"].(float64), 0.001)
		w.WriteHeader(http.StatusCreated)
	})

	err := client.LogSensorReading("kegerator", 4.5, time.Unix(1700000000, 0))
	assert.NoError(t, err)
}
