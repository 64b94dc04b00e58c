package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/webident/loginza/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Loginza   LoginzaConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoginzaConfig is the broker/widget surface: fallback account attributes plus
// everything the widget templates substitute.
type LoginzaConfig struct {
	WidgetURL           string // broker host serving widget.js and the login iframe
	SiteDomain          string // public domain of this site, used in the callback URL
	CallbackPath        string // path the broker posts the verified payload to
	DefaultEmail        string // fallback email when the payload carries none
	DefaultProvider     string
	DefaultProvidersSet string
	DefaultLanguage     string
	ProviderTitles      map[string]string // display-name overrides per provider
	IconsProviders      string            // comma-separated set used by the icons widget
	IconsImgURLs        map[string]string // icon URL overrides per provider
	ButtonImgURL        string
	IframeWidth         string
	IframeHeight        string
	AmnesiaPaths        []string // paths never captured as a return path
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("MINIO_BUCKET", "avatars")
	viper.SetDefault("LOGINZA_WIDGET_URL", "https://loginza.ru")
	viper.SetDefault("LOGINZA_CALLBACK_PATH", "/auth/callback")
	viper.SetDefault("LOGINZA_DEFAULT_LANGUAGE", "en")
	viper.SetDefault("LOGINZA_BUTTON_IMG_URL", "https://loginza.ru/img/sign_in_button_gray.gif")
	viper.SetDefault("LOGINZA_IFRAME_WIDTH", "359px")
	viper.SetDefault("LOGINZA_IFRAME_HEIGHT", "300px")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Loginza: LoginzaConfig{
			WidgetURL:           viper.GetString("LOGINZA_WIDGET_URL"),
			SiteDomain:          viper.GetString("LOGINZA_SITE_DOMAIN"),
			CallbackPath:        viper.GetString("LOGINZA_CALLBACK_PATH"),
			DefaultEmail:        viper.GetString("LOGINZA_DEFAULT_EMAIL"),
			DefaultProvider:     viper.GetString("LOGINZA_DEFAULT_PROVIDER"),
			DefaultProvidersSet: viper.GetString("LOGINZA_DEFAULT_PROVIDERS_SET"),
			DefaultLanguage:     viper.GetString("LOGINZA_DEFAULT_LANGUAGE"),
			ProviderTitles:      parseKVList(viper.GetString("LOGINZA_PROVIDER_TITLES")),
			IconsProviders:      viper.GetString("LOGINZA_ICONS_PROVIDERS"),
			IconsImgURLs:        parseKVList(viper.GetString("LOGINZA_ICONS_IMG_URLS")),
			ButtonImgURL:        viper.GetString("LOGINZA_BUTTON_IMG_URL"),
			IframeWidth:         viper.GetString("LOGINZA_IFRAME_WIDTH"),
			IframeHeight:        viper.GetString("LOGINZA_IFRAME_HEIGHT"),
			AmnesiaPaths:        splitList(viper.GetString("LOGINZA_AMNESIA_PATHS")),
		},
	}

	// Basic validation
	if cfg.Loginza.DefaultEmail == "" {
		logger.Warn("LOGINZA_DEFAULT_EMAIL is not set; accounts without a broker email cannot be provisioned")
	}
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}

	return cfg, nil
}

// parseKVList parses "key=value,key2=value2" into a map. Empty input yields
// an empty (non-nil) map.
func parseKVList(s string) map[string]string {
	m := map[string]string{}
	for _, pair := range splitList(s) {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k != "" {
			m[k] = v
		}
	}
	return m
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
