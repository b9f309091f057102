package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fleet    FleetConfig    `yaml:"fleet"`
	VM       VMConfig       `yaml:"vm"`
	Platform PlatformConfig `yaml:"platform"`
	Scaler   ScalerConfig   `yaml:"scaler"`
}

type FleetConfig struct {
	Name       string `yaml:"name"`
	Slots      int    `yaml:"slots"`
	IdleTarget int    `yaml:"idleTarget"`
}

type VMConfig struct {
	CPUs      int    `yaml:"cpus"`
	MemoryMB  int    `yaml:"memoryMB"`
	BaseImage string `yaml:"baseImage"`
}

type PlatformConfig struct {
	APIBaseURL     string `yaml:"apiBaseURL"`
	CredentialFile string `yaml:"credentialFile"`
}

type ScalerConfig struct {
	PollSeconds int `yaml:"pollSeconds"`
	StatusPort  int `yaml:"statusPort"`
}

func Default() Config {
	return Config{
		Fleet: FleetConfig{
			Name:       "runner-pool",
			Slots:      10,
			IdleTarget: 3,
		},
		VM: VMConfig{
			CPUs:     2,
			MemoryMB: 4096,
		},
		Platform: PlatformConfig{
			APIBaseURL: "https://api.github.com",
		},
		Scaler: ScalerConfig{
			PollSeconds: 60,
			StatusPort:  8094,
		},
	}
}

func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".runnerfleet")
}

func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// Load merges the config file over the defaults. A missing file is not an
// error; everything has a usable default.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func Save(cfg Config) error {
	if err := os.MkdirAll(BaseDir(), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0644)
}
