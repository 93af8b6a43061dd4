package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sampleConfig struct {
	Addr    string        `envconfig:"ADDR" default:":8080"`
	Timeout time.Duration `split_words:"true" default:"5s"`
	Token   string        `required:"true"`
}

type checkedConfig struct {
	Size int `default:"0"`
}

func (c checkedConfig) Validate() error {
	if c.Size <= 0 {
		return errors.New("size must be positive")
	}
	return nil
}

func TestNewReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("CFGTEST_TOKEN", "abc")
	t.Setenv("CFGTEST_TIMEOUT", "2s")

	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Addr != ":8080" || conf.Timeout != 2*time.Second || conf.Token != "abc" {
		t.Fatalf("unexpected config: %+v", conf)
	}
}

func TestNewReportsMissingRequired(t *testing.T) {
	_, err := New[sampleConfig]("CFGMISSING")
	if err == nil || !strings.Contains(err.Error(), "CFGMISSING") {
		t.Fatalf("expected prefixed error, got %v", err)
	}
}

func TestNewRunsValidate(t *testing.T) {
	t.Setenv("CFGCHECK_SIZE", "0")
	if _, err := New[checkedConfig]("CFGCHECK"); err == nil {
		t.Fatal("expected validation error")
	}

	t.Setenv("CFGCHECK_SIZE", "3")
	conf, err := New[checkedConfig]("CFGCHECK")
	if err != nil || conf.Size != 3 {
		t.Fatalf("New() = %+v, %v", conf, err)
	}
}

func TestExportEnvironmentKeepsProcessValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "CFGFILE_ONLY=from-file\nCFGFILE_BOTH=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFGFILE_BOTH", "from-process")
	t.Setenv("CFGFILE_ONLY", "")
	os.Unsetenv("CFGFILE_ONLY")

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	if got := os.Getenv("CFGFILE_ONLY"); got != "from-file" {
		t.Fatalf("CFGFILE_ONLY = %q", got)
	}
	if got := os.Getenv("CFGFILE_BOTH"); got != "from-process" {
		t.Fatalf("CFGFILE_BOTH = %q, process value must win", got)
	}
}

func TestExportEnvironmentIfExistsIgnoresMissingFile(t *testing.T) {
	if err := exportEnvironmentIfExists(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("exportEnvironmentIfExists() error = %v", err)
	}
}
