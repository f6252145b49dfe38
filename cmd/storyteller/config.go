// ABOUTME: YAML config file for the storyteller CLI, layered between built-in defaults and flags.
// ABOUTME: Unknown keys are rejected so typos surface at startup instead of being ignored.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the config file. Empty values leave the flag default.
type fileConfig struct {
	Addr              string `yaml:"addr"`
	StoriesDir        string `yaml:"stories_dir"`
	Engine            string `yaml:"engine"`
	Script            string `yaml:"script"`
	Model             string `yaml:"model"`
	ImageModel        string `yaml:"image_model"`
	BaseURL           string `yaml:"base_url"`
	GPTScriptBin      string `yaml:"gptscript_bin"`
	Illustrate        *bool  `yaml:"illustrate"`
	RunTimeout        string `yaml:"run_timeout"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`
	Server            string `yaml:"server"`
	Journal           string `yaml:"journal"`
}

// loadFileConfig reads the config file at path. A missing file is an error
// only when required is set.
func loadFileConfig(path string, required bool) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return fc, nil
		}
		return fc, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// apply copies file values into cfg for every setting not given on the
// command line.
func (fc fileConfig) apply(cfg *config, set map[string]bool) error {
	setString := func(flagName, value string, dst *string) {
		if !set[flagName] && value != "" {
			*dst = value
		}
	}
	setString("addr", fc.Addr, &cfg.addr)
	setString("stories-dir", fc.StoriesDir, &cfg.storiesDir)
	setString("engine", fc.Engine, &cfg.engine)
	setString("script", fc.Script, &cfg.script)
	setString("model", fc.Model, &cfg.model)
	setString("image-model", fc.ImageModel, &cfg.imageModel)
	setString("base-url", fc.BaseURL, &cfg.baseURL)
	setString("gptscript-bin", fc.GPTScriptBin, &cfg.gptscriptBin)
	setString("server", fc.Server, &cfg.server)
	setString("journal", fc.Journal, &cfg.journalPath)

	if !set["illustrate"] && fc.Illustrate != nil {
		cfg.illustrate = *fc.Illustrate
	}
	if !set["max-runs"] && fc.MaxConcurrentRuns != 0 {
		cfg.maxConcurrentRuns = fc.MaxConcurrentRuns
	}
	if !set["run-timeout"] && fc.RunTimeout != "" {
		d, err := time.ParseDuration(fc.RunTimeout)
		if err != nil {
			return fmt.Errorf("run_timeout: %w", err)
		}
		cfg.runTimeout = d
	}
	return nil
}
