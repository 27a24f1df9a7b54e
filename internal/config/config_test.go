package config

import "testing"

func TestDefault(t *testing.T) {
	c := Default()
	if c.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", c.Host)
	}
	if c.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", c.Port, DefaultPort)
	}
	if c.RequireDiscoveryToken {
		t.Error("RequireDiscoveryToken must default to false")
	}
}

func TestLoadFromBytesExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("CDPRELAY_TEST_HOST", "0.0.0.0")
	yaml := []byte("host: ${CDPRELAY_TEST_HOST}\nport: 9000\n")

	c, err := LoadFromBytes(yaml)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if c.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0 (env-expanded)", c.Host)
	}
	if c.Port != 9000 {
		t.Errorf("Port = %d, want 9000", c.Port)
	}
	if c.ForwardTimeout != DefaultForwardTimeout {
		t.Errorf("ForwardTimeout = %v, want default %v", c.ForwardTimeout, DefaultForwardTimeout)
	}
}

func TestLoadFromFileMissingFileReturnsDefaults(t *testing.T) {
	c, err := LoadFromFile("/nonexistent/cdprelay.yaml")
	if err != nil {
		t.Fatalf("LoadFromFile on a missing file must not error: %v", err)
	}
	if c.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", c.Port, DefaultPort)
	}
}

func TestApplyEnvOverridesHostPortScreenshotDir(t *testing.T) {
	t.Setenv("CDPRELAY_HOST", "1.2.3.4")
	t.Setenv("CDPRELAY_PORT", "7777")
	t.Setenv("CDPRELAY_SCREENSHOT_DIR", "/tmp/shots")

	c := Default()
	applyEnv(&c)

	if c.Host != "1.2.3.4" {
		t.Errorf("Host = %q, want 1.2.3.4", c.Host)
	}
	if c.Port != 7777 {
		t.Errorf("Port = %d, want 7777", c.Port)
	}
	if c.ScreenshotDir != "/tmp/shots" {
		t.Errorf("ScreenshotDir = %q, want /tmp/shots", c.ScreenshotDir)
	}
}
