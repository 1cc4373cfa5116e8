package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"listen address", cfg.Server.ListenAddress, DefaultListenAddress},
		{"shutdown timeout", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout},
		{"protected prefix", cfg.Admission.ProtectedPrefix, "/api/"},
		{"store timeout", cfg.Admission.StoreTimeout, 50 * time.Millisecond},
		{"exempt paths", len(cfg.Admission.ExemptPaths), 3},
		{"whitelist", len(cfg.Admission.WhitelistAddresses), 2},
		{"default windows", len(cfg.Admission.DefaultPolicy.Windows), 3},
		{"path policies", len(cfg.Admission.PathPolicies), 3},
		{"tier policies", len(cfg.Admission.TierPolicies), 1},
		{"backend", cfg.Storage.Backend, "memory"},
		{"sweep schedule", cfg.Storage.SweepSchedule, "@every 1m"},
		{"redis prefix", cfg.Storage.Redis.KeyPrefix, "sentinel:rl"},
		{"admin prefix", cfg.Admin.PathPrefix, "/admin/ratelimit"},
		{"premium claim", cfg.Security.JWT.PremiumClaim, "premium"},
		{"log level", cfg.Telemetry.Logging.Level, "info"},
		{"readiness path", cfg.Telemetry.Health.ReadinessPath, "/ready"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, tt.got)
		}
	}
}

func TestApplyDefaults_BuiltInPolicies(t *testing.T) {
	cfg := NewDefaultConfig()

	def := cfg.Admission.DefaultPolicy.Windows
	expected := []int{100, 1000, 10000}
	for i, w := range def {
		if w.MaxRequests != expected[i] {
			t.Errorf("Expected default window %s to allow %d, got %d", w.Name, expected[i], w.MaxRequests)
		}
	}

	byPrefix := map[string]int{}
	for _, pp := range cfg.Admission.PathPolicies {
		byPrefix[pp.Prefix] = pp.Windows[0].MaxRequests
	}
	for prefix, perMinute := range map[string]int{"/api/chatbot/": 60, "/api/locations/": 30, "/api/": 100} {
		if byPrefix[prefix] != perMinute {
			t.Errorf("Expected %s to allow %d per minute, got %d", prefix, perMinute, byPrefix[prefix])
		}
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestApplyDefaults_ConfiguredDefaultSuppressesBuiltInPaths(t *testing.T) {
	cfg := &Config{}
	cfg.Admission.DefaultPolicy.Windows = StandardWindows(1, 2, 3)
	ApplyDefaults(cfg)

	if len(cfg.Admission.PathPolicies) != 0 {
		t.Errorf("Expected no built-in path policies, got %d", len(cfg.Admission.PathPolicies))
	}
}

func TestApplyDefaults_ExplicitEmptyListsKept(t *testing.T) {
	cfg := &Config{}
	cfg.Admission.WhitelistAddresses = []string{}
	cfg.Admission.ExemptPaths = []string{}
	ApplyDefaults(cfg)

	if len(cfg.Admission.WhitelistAddresses) != 0 {
		t.Errorf("Expected empty whitelist to be kept, got %v", cfg.Admission.WhitelistAddresses)
	}
	if len(cfg.Admission.ExemptPaths) != 0 {
		t.Errorf("Expected empty exempt paths to be kept, got %v", cfg.Admission.ExemptPaths)
	}
}

func TestAdmissionConfig_RegistryConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	rc := cfg.Admission.RegistryConfig()
	if len(rc.Default) != 3 || rc.Default[0].Duration != time.Minute {
		t.Errorf("Expected minute window first, got %+v", rc.Default)
	}
	if _, ok := rc.Tiers["premium"]; !ok {
		t.Error("Expected premium tier override")
	}
}
