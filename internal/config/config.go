package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the engine configuration. It is built once at startup and
// passed explicitly into everything that needs it; there are no process-wide
// singletons.
type Config struct {
	StorePath string
	LogLevel  string

	// Timeouts, in seconds.
	IMAPTimeoutSeconds   int
	SMTPTimeoutSeconds   int
	AppendTimeoutSeconds int

	// Change detection.
	PollFetchLimit       int
	PollSinceHours       int
	WatchIntervalSeconds int

	// Send-append mirroring.
	AppendRetryCycles int

	Accounts []AccountConfig
}

// AccountConfig is one account's connection identity: decrypted IMAP/SMTP
// endpoints and credential. The engine treats this as read-only.
type AccountConfig struct {
	Name string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPUseSSL   bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseSSL   bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StorePath:            getEnv("STORE_PATH", "/data/mailstore.db"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		IMAPTimeoutSeconds:   getEnvInt("IMAP_TIMEOUT_SECONDS", 15),
		SMTPTimeoutSeconds:   getEnvInt("SMTP_TIMEOUT_SECONDS", 30),
		AppendTimeoutSeconds: getEnvInt("APPEND_TIMEOUT_SECONDS", 60),
		PollFetchLimit:       getEnvInt("POLL_FETCH_LIMIT", 5),
		PollSinceHours:       getEnvInt("POLL_SINCE_HOURS", 1),
		WatchIntervalSeconds: getEnvInt("WATCH_INTERVAL_SECONDS", 60),
		AppendRetryCycles:    getEnvInt("APPEND_RETRY_CYCLES", 2),
	}

	accounts, err := loadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	cfg.Accounts = accounts

	return cfg, nil
}

// loadAccounts loads account configurations from environment variables.
func loadAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig

	// Single account configuration takes precedence (unprefixed vars).
	if getEnv("IMAP_HOST", "") != "" && getEnv("SMTP_HOST", "") != "" {
		account, err := loadAccount("", getEnv("ACCOUNT_NAME", "default"))
		if err != nil {
			return nil, err
		}
		return []AccountConfig{*account}, nil
	}

	// Multiple accounts: ACCOUNT_1_*, ACCOUNT_2_*, ...
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		name := getEnv(prefix+"NAME", "")
		if name == "" {
			break
		}
		account, err := loadAccount(prefix, name)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", num, err)
		}
		accounts = append(accounts, *account)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}
	return accounts, nil
}

// loadAccount loads one account block with the given variable prefix.
func loadAccount(prefix, name string) (*AccountConfig, error) {
	acc := &AccountConfig{
		Name:         name,
		IMAPHost:     getEnv(prefix+"IMAP_HOST", ""),
		IMAPPort:     getEnvInt(prefix+"IMAP_PORT", 993),
		IMAPUsername: getEnv(prefix+"IMAP_USERNAME", ""),
		IMAPPassword: getEnv(prefix+"IMAP_PASSWORD", ""),
		IMAPUseSSL:   getEnvBool(prefix+"IMAP_USE_SSL", true),
		SMTPHost:     getEnv(prefix+"SMTP_HOST", ""),
		SMTPPort:     getEnvInt(prefix+"SMTP_PORT", 587),
		SMTPUsername: getEnv(prefix+"SMTP_USERNAME", ""),
		SMTPPassword: getEnv(prefix+"SMTP_PASSWORD", ""),
		SMTPUseSSL:   getEnvBool(prefix+"SMTP_USE_SSL", false),
	}

	if acc.IMAPHost == "" || acc.SMTPHost == "" {
		return nil, fmt.Errorf("IMAP_HOST and SMTP_HOST are required")
	}
	if acc.IMAPUsername == "" || acc.SMTPUsername == "" {
		return nil, fmt.Errorf("IMAP_USERNAME and SMTP_USERNAME are required")
	}
	if acc.IMAPPassword == "" || acc.SMTPPassword == "" {
		return nil, fmt.Errorf("IMAP_PASSWORD and SMTP_PASSWORD are required")
	}

	return acc, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetAccountByName finds an account by name.
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// AccountNames returns a list of all account names.
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if c.IMAPTimeoutSeconds < 1 {
		return fmt.Errorf("IMAP_TIMEOUT_SECONDS must be positive")
	}
	if c.SMTPTimeoutSeconds < 1 {
		return fmt.Errorf("SMTP_TIMEOUT_SECONDS must be positive")
	}
	if c.AppendTimeoutSeconds < c.IMAPTimeoutSeconds {
		return fmt.Errorf("APPEND_TIMEOUT_SECONDS must not be shorter than IMAP_TIMEOUT_SECONDS")
	}
	if c.PollFetchLimit < 1 || c.PollFetchLimit > 100 {
		return fmt.Errorf("POLL_FETCH_LIMIT must be between 1 and 100")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
		if acc.SMTPPort < 1 || acc.SMTPPort > 65535 {
			return fmt.Errorf("account %s: invalid SMTP_PORT", acc.Name)
		}
	}

	return nil
}
