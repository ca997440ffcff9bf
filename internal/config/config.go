// Package config loads the relay's configuration from the environment. All
// values are read and validated once at startup; a missing or invalid value
// stops the process before it serves anything.
package config

import (
	"fmt"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
	"github.com/tomasbasham/ipfs-relay/internal/ipfs"
)

const (
	BackendGCS  = "gcs"
	BackendDisk = "disk"
)

type Config struct {
	Stage string `env:"STAGE,default=dev"`

	// BucketName and Region locate the GCS bucket holding uploads.
	BucketName string `env:"BUCKET_NAME" validate:"required_if=StorageBackend gcs"`
	Region     string `env:"REGION" validate:"required_if=StorageBackend gcs"`

	StorageBackend string `env:"STORAGE_BACKEND,default=gcs" validate:"oneof=gcs disk"`
	StorageDir     string `env:"STORAGE_DIR" validate:"required_if=StorageBackend disk"`

	IPFSURL         string `env:"IPFS_URL" validate:"required,url"`
	InfuraProjectID string `env:"INFURA_PROJECT_ID" validate:"required"`
	InfuraSecret    string `env:"INFURA_SECRET" validate:"required"`

	// IPFSTimeout bounds each call to the IPFS API.
	IPFSTimeout time.Duration `env:"IPFS_TIMEOUT,default=5m" validate:"gt=0"`

	// DomainName is the browser origin allowed to request upload URLs.
	DomainName string `env:"DOMAIN_NAME,default=http://localhost:3000" validate:"url"`
}

// Load reads the configuration from the process environment. Any envFiles are
// loaded first; variables already set in the environment take precedence.
func Load(envFiles ...string) (*Config, error) {
	return LoadWithOverrides(nil, envFiles...)
}

// LoadWithOverrides is Load with overrides applied on top of the environment.
func LoadWithOverrides(overrides map[string]string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("%w: failed to load env file: %w", errdefs.ErrConfiguration, err)
		}
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrConfiguration, err)
	}
	for k, v := range overrides {
		es[k] = v
	}
	return FromEnvSet(es)
}

// FromEnvSet builds a Config from an explicit set of variables.
func FromEnvSet(es env.EnvSet) (*Config, error) {
	var c Config
	if err := env.Unmarshal(es, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrConfiguration, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every required value is present and well formed.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrConfiguration, err)
	}
	return nil
}

// Credentials returns the IPFS API credentials.
func (c *Config) Credentials() ipfs.Credentials {
	return ipfs.Credentials{
		ProjectID: c.InfuraProjectID,
		Secret:    c.InfuraSecret,
	}
}
