package core

import (
	"fmt"
	"sync"
	"time"

	"kegnet.io/kegcore/internal/backend"
	"kegnet.io/kegcore/internal/bus"
	"kegnet.io/kegcore/internal/config"
	"kegnet.io/kegcore/internal/event"
	"kegnet.io/kegcore/internal/log"
)

// TokenRecord tracks one authentication token currently present on a meter.
type TokenRecord struct {
	AuthDevice string
	TokenValue string
	MeterName  string
}

func (r *TokenRecord) sameToken(other *TokenRecord) bool {
	return other != nil &&
		r.AuthDevice == other.AuthDevice &&
		r.TokenValue == other.TokenValue &&
		r.MeterName == other.MeterName
}

func (r *TokenRecord) String() string {
	return fmt.Sprintf("%s:%s@%s", r.AuthDevice, r.TokenValue, r.MeterName)
}

// AuthenticationManager maps token add/remove events onto flow start/stop
// according to per-device policy. Captive devices (which physically retain
// the token) end the flow on removal; contactless devices rely on the idle
// timeout instead.
type AuthenticationManager struct {
	hub     *bus.EventHub
	flows   FlowController
	taps    *TapManager
	backend backend.Client

	captive map[string]bool
	maxIdle map[string]int
	aliases map[string]string

	mu     sync.Mutex
	tokens map[string]*TokenRecord // meter name → active token

	logger log.Logger
}

// NewAuthenticationManager builds the manager with the built-in device
// policy merged under any overrides from configuration.
func NewAuthenticationManager(hub *bus.EventHub, flows FlowController, taps *TapManager,
	client backend.Client, authCfg config.AuthConfig) *AuthenticationManager {

	captive := make(map[string]bool, len(defaultCaptive))
	maxIdle := make(map[string]int, len(defaultMaxIdleSecs))
	aliases := make(map[string]string, len(defaultDeviceAliases))
	for k, v := range defaultCaptive {
		captive[k] = v
	}
	for k, v := range defaultMaxIdleSecs {
		maxIdle[k] = v
	}
	for k, v := range defaultDeviceAliases {
		aliases[k] = v
	}
	for name, policy := range authCfg.Devices {
		captive[name] = policy.Captive
		maxIdle[name] = policy.MaxIdleSecs
	}
	for from, to := range authCfg.Aliases {
		aliases[from] = to
	}

	return &AuthenticationManager{
		hub:     hub,
		flows:   flows,
		taps:    taps,
		backend: client,
		captive: captive,
		maxIdle: maxIdle,
		aliases: aliases,
		tokens:  make(map[string]*TokenRecord),
		logger:  log.GetLogger().WithField("component", "authmanager"),
	}
}

// Handlers returns the event bindings consumed during wiring.
func (m *AuthenticationManager) Handlers() []bus.Binding {
	return []bus.Binding{
		{Event: "TokenAuthEvent", Handler: func(ev event.Event) {
			m.handleTokenAuth(ev.(*event.TokenAuthEvent))
		}},
	}
}

// ActiveToken returns the token currently present on a meter, or nil.
func (m *AuthenticationManager) ActiveToken(meterName string) *TokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[meterName]
}

func (m *AuthenticationManager) handleTokenAuth(ev *event.TokenAuthEvent) {
	taps := m.tapsForMeterName(ev.MeterName)
	m.logger.Debugf("token auth: device=%s token=%s meter=%s status=%s targets=%d",
		ev.AuthDeviceName, ev.TokenValue, ev.MeterName, ev.Status, len(taps))

	for _, tap := range taps {
		record := &TokenRecord{
			AuthDevice: ev.AuthDeviceName,
			TokenValue: ev.TokenValue,
			MeterName:  tap.Name(),
		}
		m.mu.Lock()
		if ev.Status == event.TokenAdded {
			m.tokenAddedLocked(record)
		} else {
			m.tokenRemovedLocked(record)
		}
		m.mu.Unlock()
	}
}

// tokenAddedLocked installs a newly presented token, displacing any
// different token already on the meter. Callers hold m.mu.
func (m *AuthenticationManager) tokenAddedLocked(record *TokenRecord) {
	m.logger.Infof("token attached: %s", record)
	existing := m.tokens[record.MeterName]

	if record.sameToken(existing) {
		// Token is already known; nothing to do.
		return
	}

	if existing != nil {
		m.logger.Info("removing previous token")
		m.tokenRemovedLocked(existing)
	}

	m.tokens[record.MeterName] = record
	m.maybeStartFlow(record)
}

// tokenRemovedLocked handles a token leaving the meter. Removal of a token
// that is not the active one is logged and ignored. Callers hold m.mu.
func (m *AuthenticationManager) tokenRemovedLocked(record *TokenRecord) {
	m.logger.Infof("token detached: %s", record)
	if !record.sameToken(m.tokens[record.MeterName]) {
		m.logger.Warn("token has already been removed")
		return
	}

	delete(m.tokens, record.MeterName)
	m.maybeEndFlow(record)
}

// maybeStartFlow looks the token up on the backend and, when it resolves to
// an enabled user-bound token, starts (or renews) a flow with the device's
// idle policy. Unbound or disabled tokens are logged and ignored.
func (m *AuthenticationManager) maybeStartFlow(record *TokenRecord) {
	token, err := m.backend.GetAuthToken(record.AuthDevice, record.TokenValue)
	if err != nil {
		if backend.IsNotFound(err) {
			m.logger.Infof("token not assigned: %s", record)
		} else {
			m.logger.WithError(err).Warnf("token lookup failed: %s", record)
		}
		return
	}
	if token.Username == "" {
		m.logger.Infof("token not assigned: %s", record)
		return
	}
	if !token.Enabled {
		m.logger.Infof("token disabled: %s", record)
		return
	}

	maxIdle := m.maxIdleFor(record.AuthDevice)
	m.flows.StartFlow(record.MeterName, token.Username, maxIdle)
}

// maybeEndFlow ends the flow for a removed token when the device is
// captive; contactless removals are a no-op and the flow ends by idle
// timeout.
func (m *AuthenticationManager) maybeEndFlow(record *TokenRecord) {
	if m.captiveFor(record.AuthDevice) {
		m.logger.Debug("captive auth device, ending flow immediately")
		m.flows.StopFlow(record.MeterName)
	} else {
		m.logger.Debug("non-captive auth device, not ending flow")
	}
}

func (m *AuthenticationManager) canonicalDevice(device string) string {
	if target, ok := m.aliases[device]; ok {
		return target
	}
	return device
}

func (m *AuthenticationManager) captiveFor(device string) bool {
	device = m.canonicalDevice(device)
	if captive, ok := m.captive[device]; ok {
		return captive
	}
	return m.captive[authDeviceDefault]
}

func (m *AuthenticationManager) maxIdleFor(device string) time.Duration {
	device = m.canonicalDevice(device)
	secs, ok := m.maxIdle[device]
	if !ok {
		secs = m.maxIdle[authDeviceDefault]
	}
	return time.Duration(secs) * time.Second
}

// tapsForMeterName resolves the taps targeted by a meter-valued event
// field: the wildcard alias targets every registered tap, anything else the
// single matching tap (or none).
func (m *AuthenticationManager) tapsForMeterName(meterName string) []Tap {
	if meterName == "" || meterName == AliasAllTaps {
		return m.taps.GetAllTaps()
	}
	if tap, ok := m.taps.GetTap(meterName); ok {
		return []Tap{tap}
	}
	return nil
}
