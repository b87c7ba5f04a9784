package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/MattGorko/U2F-Emulated/pkg"
)

// Config holds the four ambient configuration variables the emulator needs
// to start: where the attestation key material lives, where the key-handle
// wrap key lives, and which transport device to open.
type Config struct {
	AttestationKeyPath  string `yaml:"attestation_key_path"`
	AttestationCertPath string `yaml:"attestation_cert_path"`
	WrapKeyPath         string `yaml:"wrap_key_path"`
	DevicePath          string `yaml:"device_path"`
}

// Validation errors.
var (
	// ErrMissingAttestationKeyPath indicates no attestation key path was
	// resolved from any layer.
	ErrMissingAttestationKeyPath = errors.New("attestation key path not configured")

	// ErrMissingAttestationCertPath indicates no attestation cert path was
	// resolved from any layer.
	ErrMissingAttestationCertPath = errors.New("attestation cert path not configured")

	// ErrMissingWrapKeyPath indicates no wrap key path was resolved from any
	// layer.
	ErrMissingWrapKeyPath = errors.New("wrap key path not configured")

	// ErrMissingDevicePath indicates no transport device path was resolved
	// from any layer.
	ErrMissingDevicePath = errors.New("device path not configured")
)

// environment variable names, per the external interface contract.
const (
	envAttestationKeyPath  = "ATTESTATION_KEY_PATH"
	envAttestationCertPath = "ATTESTATION_CERT_PATH"
	envWrapKeyPath         = "WRAP_KEY"
	envDevicePath          = "DEVICE_PATH"
)

// Flags binds the command-line flag surface used to override configuration.
// Flags is exported so cmd/u2femud can register it on its own FlagSet and
// call Parse before Load.
type Flags struct {
	ConfigPath          string
	AttestationKeyPath  string
	AttestationCertPath string
	WrapKeyPath         string
	DevicePath          string

	fs *pflag.FlagSet
}

// RegisterFlags adds the configuration flags to fs and returns a Flags
// handle for reading them back after fs.Parse.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "path to an optional YAML config file")
	fs.StringVar(&f.AttestationKeyPath, "attestation-key", "", "path to the attestation private key (PEM)")
	fs.StringVar(&f.AttestationCertPath, "attestation-cert", "", "path to the attestation certificate (DER)")
	fs.StringVar(&f.WrapKeyPath, "wrap-key", "", "path to the raw 32-byte key-handle wrap key")
	fs.StringVar(&f.DevicePath, "device", "", "path to the HID report device")
	return f
}

// Load resolves a Config by layering, in increasing priority: the YAML file
// at f.ConfigPath (if set), environment variables, then the flags
// themselves. A flag only overrides a lower layer when the user actually set
// it on the command line.
func Load(f *Flags) (*Config, error) {
	cfg := &Config{}

	if f.ConfigPath != "" {
		if err := loadYAML(f.ConfigPath, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", f.ConfigPath, err)
		}
		pkg.LogDebug(pkg.ComponentConfig, "loaded config file", "path", f.ConfigPath)
	}

	overlayEnv(cfg)
	overlayFlags(cfg, f)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentConfig, "configuration resolved", "device", cfg.DevicePath)
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

func overlayEnv(cfg *Config) {
	if v, ok := os.LookupEnv(envAttestationKeyPath); ok {
		cfg.AttestationKeyPath = v
	}
	if v, ok := os.LookupEnv(envAttestationCertPath); ok {
		cfg.AttestationCertPath = v
	}
	if v, ok := os.LookupEnv(envWrapKeyPath); ok {
		cfg.WrapKeyPath = v
	}
	if v, ok := os.LookupEnv(envDevicePath); ok {
		cfg.DevicePath = v
	}
}

func overlayFlags(cfg *Config, f *Flags) {
	if f.fs == nil {
		return
	}
	if f.fs.Changed("attestation-key") {
		cfg.AttestationKeyPath = f.AttestationKeyPath
	}
	if f.fs.Changed("attestation-cert") {
		cfg.AttestationCertPath = f.AttestationCertPath
	}
	if f.fs.Changed("wrap-key") {
		cfg.WrapKeyPath = f.WrapKeyPath
	}
	if f.fs.Changed("device") {
		cfg.DevicePath = f.DevicePath
	}
}

// Validate checks that every ambient configuration variable resolved to a
// non-empty value.
func Validate(cfg *Config) error {
	if cfg.AttestationKeyPath == "" {
		return ErrMissingAttestationKeyPath
	}
	if cfg.AttestationCertPath == "" {
		return ErrMissingAttestationCertPath
	}
	if cfg.WrapKeyPath == "" {
		return ErrMissingWrapKeyPath
	}
	if cfg.DevicePath == "" {
		return ErrMissingDevicePath
	}
	return nil
}
