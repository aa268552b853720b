package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "name: vault\n")
	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "vault" || cfg.Port != 8080 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ANSUZ_TEST_TOKEN", "s3cret")
	t.Setenv("ANSUZ_TEST_EMPTY", "")
	path := writeConfig(t, "token: ${ANSUZ_TEST_TOKEN}\nname: ${ANSUZ_TEST_EMPTY:-fallback}\nport: ${ANSUZ_TEST_UNSET:-9090}\n")
	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "s3cret" || cfg.Name != "fallback" || cfg.Port != 9090 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeConfig(t, "port: 0\n")
	var cfg sample
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := sample{Port: 1}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}

	bad := sample{}
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &bad); err == nil {
		t.Error("defaults should still be validated")
	}

	path := writeConfig(t, "port: 7\n")
	found, err = LoadOptional(path, &cfg)
	if err != nil || !found || cfg.Port != 7 {
		t.Fatalf("found=%v err=%v cfg=%+v", found, err, cfg)
	}
}

func TestDecodeBadYAML(t *testing.T) {
	var cfg sample
	if err := Decode([]byte("port: [1"), &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
