// Package cliconfig loads CLI settings and cached credentials from the
// user's ~/.netview directory.
package cliconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/netview-hq/netview-go/domains/identity"
	"github.com/netview-hq/netview-go/domains/session"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Config is the CLI's effective configuration, merged from the config file,
// environment (NETVIEW_* variables) and flags.
type Config struct {
	BackendURL         string `mapstructure:"backend_url"`
	FirebaseAPIKey     string `mapstructure:"firebase_api_key"`
	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`

	dir string
	v   *viper.Viper
}

var active *Config

// SetActive stores the configuration loaded by the root command for use by
// subcommand packages.
func SetActive(c *Config) { active = c }

// Active returns the configuration loaded at startup.
func Active() *Config { return active }

// Load reads the config file (default ~/.netview/config.yaml) and environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("backend_url", "http://localhost:5000")
	v.SetEnvPrefix("NETVIEW")
	v.AutomaticEnv()

	// AutomaticEnv only surfaces variables for keys viper already knows, so
	// every mapped key needs an explicit binding to work env-only.
	for _, key := range []string{
		"backend_url",
		"firebase_api_key",
		"google_client_id",
		"google_client_secret",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{dir: dir, v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".netview"), nil
}

// SaveRefreshToken caches the identity refresh token with user-only perms.
func (c *Config) SaveRefreshToken(token string) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(c.dir, "credentials")
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// RefreshToken returns the cached refresh token, empty when none is stored.
func (c *Config) RefreshToken() string {
	raw, err := os.ReadFile(filepath.Join(c.dir, "credentials"))
	if err != nil {
		return ""
	}
	return string(raw)
}

// ClearRefreshToken removes the cached credentials; missing file is fine.
func (c *Config) ClearRefreshToken() error {
	err := os.Remove(filepath.Join(c.dir, "credentials"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NewProvider builds the identity provider, wiring interactive Google sign-in
// when a client ID is configured.
func (c *Config) NewProvider() (*identity.FirebaseProvider, error) {
	if c.FirebaseAPIKey == "" {
		return nil, fmt.Errorf("firebase_api_key is not configured (set it in %s/config.yaml or NETVIEW_FIREBASE_API_KEY)", c.dir)
	}

	fbCfg := identity.FirebaseConfig{APIKey: c.FirebaseAPIKey}
	if c.GoogleClientID != "" {
		google := &identity.GoogleAuthenticator{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
		}
		fbCfg.GoogleToken = google.TokenFunc()
	}
	return identity.NewFirebaseProvider(fbCfg)
}

// NewClient builds a backend client authenticated by the provider's tokens.
func (c *Config) NewClient(provider *identity.FirebaseProvider) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL: c.BackendURL,
		Token:   provider.IDToken,
	})
}

// ResumeSession restores the cached sign-in and returns a synced store. It
// fails when no credentials are cached or the refresh token was revoked.
func (c *Config) ResumeSession(ctx context.Context) (*session.Store, *identity.FirebaseProvider, *backend.Client, error) {
	provider, err := c.NewProvider()
	if err != nil {
		return nil, nil, nil, err
	}

	token := c.RefreshToken()
	if token == "" {
		return nil, nil, nil, fmt.Errorf("not signed in (run `netview auth login` first)")
	}
	if _, err := provider.Resume(ctx, token); err != nil {
		return nil, nil, nil, fmt.Errorf("restore session: %w", err)
	}

	client, err := c.NewClient(provider)
	if err != nil {
		return nil, nil, nil, err
	}

	store := session.NewStore(provider, client, nil)
	if err := store.Start(ctx, session.StartOptions{}); err != nil {
		return nil, nil, nil, err
	}
	return store, provider, client, nil
}
