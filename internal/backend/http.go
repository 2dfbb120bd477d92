package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"kegnet.io/kegcore/internal/log"
)

// defaultMeterNames are created alongside every new controller so that a
// freshly attached board immediately has meters to report against.
var defaultMeterNames = []string{"flow0", "flow1"}

// HTTPClient talks to the backend REST API.
type HTTPClient struct {
	rest   *resty.Client
	logger log.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a Client for the API at baseURL. The key is sent on
// every request; timeout bounds each HTTP round trip.
func NewHTTPClient(baseURL, key string, timeout time.Duration) *HTTPClient {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		// Result bodies are decoded as JSON even when a response does not
		// label its content type.
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.ForceContentType("application/json")
			return nil
		})
	if key != "" {
		rest.SetHeader("X-Api-Key", key)
	}
	return &HTTPClient{
		rest:   rest,
		logger: log.GetLogger().WithField("component", "backend"),
	}
}

func (c *HTTPClient) GetStatus() (map[string]interface{}, error) {
	var status map[string]interface{}
	resp, err := c.rest.R().SetResult(&status).Get("/status")
	if err := classify("get_status", resp, err); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *HTTPClient) GetAllTaps() ([]TapDescriptor, error) {
	var taps []TapDescriptor
	resp, err := c.rest.R().SetResult(&taps).Get("/taps")
	if err := classify("get_all_taps", resp, err); err != nil {
		return nil, err
	}
	return taps, nil
}

func (c *HTTPClient) RecordDrink(req DrinkRequest) (*Drink, error) {
	body := map[string]interface{}{
		"ticks":      req.Ticks,
		"username":   req.Username,
		"pour_time":  req.PourTime.Unix(),
		"duration":   int64(req.Duration.Seconds()),
		"auth_token": req.AuthToken,
		"spilled":    req.Spilled,
	}
	if req.VolumeML != nil {
		body["volume_ml"] = *req.VolumeML
	}

	var drink Drink
	resp, err := c.rest.R().
		SetBody(body).
		SetResult(&drink).
		Post(fmt.Sprintf("/taps/%s/drinks", req.MeterName))
	if err := classify("record_drink", resp, err); err != nil {
		return nil, err
	}
	return &drink, nil
}

func (c *HTTPClient) CancelDrink(drinkID uint64, spilled bool) error {
	resp, err := c.rest.R().
		SetBody(map[string]interface{}{"spilled": spilled}).
		Post(fmt.Sprintf("/drinks/%d/cancel", drinkID))
	return classify("cancel_drink", resp, err)
}

func (c *HTTPClient) LogSensorReading(sensorName string, value float64, when time.Time) error {
	resp, err := c.rest.R().
		SetBody(map[string]interface{}{
			"temp_c":      value,
			"record_time": when.Unix(),
		}).
		Post(fmt.Sprintf("/thermo-sensors/%s/logs", sensorName))
	return classify("log_sensor_reading", resp, err)
}

func (c *HTTPClient) GetAuthToken(authDevice, tokenValue string) (*AuthToken, error) {
	var token AuthToken
	resp, err := c.rest.R().
		SetResult(&token).
		Get(fmt.Sprintf("/auth-tokens/%s/%s", authDevice, tokenValue))
	if cerr := classify("get_auth_token", resp, err); cerr != nil {
		// A token we cannot look up is treated as unassigned rather than
		// blocking the pour path on backend availability.
		if IsTransient(cerr) {
			c.logger.WithError(cerr).Warn("token lookup failed, treating as unassigned")
			return nil, &Error{Kind: KindNotFound, Op: "get_auth_token", Err: cerr.(*Error).Err}
		}
		return nil, cerr
	}
	return &token, nil
}

func (c *HTTPClient) CreateController(name string) (*Controller, error) {
	var controller Controller
	resp, err := c.rest.R().
		SetBody(map[string]interface{}{"name": name}).
		SetResult(&controller).
		Post("/controllers")
	if cerr := classify("create_controller", resp, err); cerr != nil {
		return nil, cerr
	}

	for _, meter := range defaultMeterNames {
		if merr := c.CreateFlowMeter(controller.ID, meter); merr != nil {
			return nil, merr
		}
	}
	return &controller, nil
}

func (c *HTTPClient) CreateFlowMeter(controllerID uint64, name string) error {
	resp, err := c.rest.R().
		SetBody(map[string]interface{}{"name": name}).
		Post(fmt.Sprintf("/controllers/%d/flow-meters", controllerID))
	return classify("create_flow_meter", resp, err)
}

// classify maps a resty result to the package error taxonomy. A nil return
// means the call succeeded with a 2xx status.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("status %d", code)}
	case code >= 500:
		return &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("status %d", code)}
	default:
		return &Error{Kind: KindOther, Op: op, Err: fmt.Errorf("status %d: %s", code, resp.String())}
	}
}
