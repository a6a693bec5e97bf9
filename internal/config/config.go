package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tenantauth.org/internal/auth"
)

// EnvPrefix is prepended to every environment override, e.g.
// TENANTAUTH_AUTH_SECRET for auth.secret.
const EnvPrefix = "TENANTAUTH"

type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
		// TrustForwardedFor keys rate limits and logs on X-Forwarded-For.
		TrustForwardedFor bool `mapstructure:"trust_forwarded_for"`
	} `mapstructure:"http"`
	GRPC struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"grpc"`
	Database struct {
		DSN          string `mapstructure:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`
	Auth      Auth `mapstructure:"auth"`
	RateLimit struct {
		LoginBurst     int     `mapstructure:"login_burst"`
		LoginPerSecond float64 `mapstructure:"login_per_second"`
	} `mapstructure:"ratelimit"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}

// Auth holds the signing and session settings handed to the auth package.
type Auth struct {
	Secret                  string        `mapstructure:"secret"`
	Algorithm               string        `mapstructure:"algorithm"`
	Issuer                  string        `mapstructure:"issuer"`
	AccessTTLMinutes        int           `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays          int           `mapstructure:"refresh_ttl_days"`
	CookieSecure            bool          `mapstructure:"cookie_secure"`
	PasswordScheme          string        `mapstructure:"password_scheme"`
	BcryptCost              int           `mapstructure:"bcrypt_cost"`
	RevocationPruneInterval time.Duration `mapstructure:"revocation_prune_interval"`
	// SignupMaxLevel is the highest access level a signup may request, as a
	// tier name or number.
	SignupMaxLevel string `mapstructure:"signup_max_level"`
}

func (a Auth) AccessTTL() time.Duration  { return time.Duration(a.AccessTTLMinutes) * time.Minute }
func (a Auth) RefreshTTL() time.Duration { return time.Duration(a.RefreshTTLDays) * 24 * time.Hour }

// SignupLevelCeiling parses SignupMaxLevel. Empty means LevelGuestUser.
func (a Auth) SignupLevelCeiling() (auth.AccessLevel, error) {
	if strings.TrimSpace(a.SignupMaxLevel) == "" {
		return auth.LevelGuestUser, nil
	}
	return auth.ParseAccessLevel(a.SignupMaxLevel)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.trust_forwarded_for", false)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.issuer", "tenantauth")
	v.SetDefault("auth.access_ttl_minutes", 1440)
	v.SetDefault("auth.refresh_ttl_days", 7)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.password_scheme", "bcrypt")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.revocation_prune_interval", time.Hour)
	v.SetDefault("auth.signup_max_level", "GUEST_USER")
	v.SetDefault("ratelimit.login_burst", 10)
	v.SetDefault("ratelimit.login_per_second", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{})
}

// Load reads config.yaml (from path, or the working directory when path is
// empty) and applies TENANTAUTH_* environment overrides. A missing file is
// not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	_ = v.BindEnv("database.dsn")
	_ = v.BindEnv("auth.secret")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	switch strings.ToUpper(c.Auth.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("auth.algorithm %q is not supported", c.Auth.Algorithm))
	}
	if c.Auth.AccessTTLMinutes <= 0 {
		errs = append(errs, errors.New("auth.access_ttl_minutes must be positive"))
	}
	if c.Auth.RefreshTTLDays <= 0 {
		errs = append(errs, errors.New("auth.refresh_ttl_days must be positive"))
	}
	switch strings.ToLower(c.Auth.PasswordScheme) {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("auth.password_scheme %q is not supported", c.Auth.PasswordScheme))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}
	if _, err := c.Auth.SignupLevelCeiling(); err != nil {
		errs = append(errs, fmt.Errorf("auth.signup_max_level: %w", err))
	}
	if c.RateLimit.LoginBurst <= 0 || c.RateLimit.LoginPerSecond <= 0 {
		errs = append(errs, errors.New("ratelimit values must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
