package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const EnvProduction = "production"

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string
	DBMaxOpenConns   int

	JWTSecret string // JWT署名シークレット

	GoEnv    string // development/production
	LogLevel string

	// 決済ゲートウェイ（eSewa）
	GatewayFormURL     string // フォームの送信先
	GatewayProductCode string // 加盟店コード
	GatewaySecretKey   string // HMAC鍵
	GatewaySuccessURL  string
	GatewayFailureURL  string

	// コールバックを受け付ける送信元（IP / CIDR）
	GatewayAllowedIPs []netip.Prefix

	// タイムスタンプの許容ずれ
	CallbackMaxSkew time.Duration

	// 本番でタイムスタンプ必須にするか
	RequireCallbackTimestamp bool

	TaxRate decimal.Decimal // 0.13 = 13%

	RedisAddr          string   // 空ならレート制限なし
	KafkaBrokers       []string // 空ならログ通知のみ
	NotifyTopic        string
	NotifyConsumerGrp  string
	RateLimitPerMinute int

	// X-Forwarded-Forを信用するか（LB配下のみtrue）
	TrustProxyHeaders bool

	PendingOrderTTL   time.Duration // これより古いPENDINGはFAILEDにする
	ReconcileInterval time.Duration
}

// 本番ならコールバックの検証を厳格にする
func (c Config) IsProduction() bool {
	return c.GoEnv == EnvProduction
}

// gorm用DSN
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv:    getenv("GO_ENV", "development"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		GatewayFormURL:     getenv("ESEWA_FORM_URL", "https://rc-epay.esewa.com.np/api/epay/main/v2/form"),
		GatewayProductCode: getenv("ESEWA_PRODUCT_CODE", "EPAYTEST"),
		GatewaySecretKey:   os.Getenv("ESEWA_SECRET_KEY"),
		GatewaySuccessURL:  os.Getenv("ESEWA_SUCCESS_URL"),
		GatewayFailureURL:  os.Getenv("ESEWA_FAILURE_URL"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:       getenv("NOTIFY_TOPIC", "order.completed"),
		NotifyConsumerGrp: getenv("NOTIFY_CONSUMER_GROUP", "order-notifier"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = atoiDefault("DB_MAX_OPEN_CONNS", 8); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = atoiDefault("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	if cfg.CallbackMaxSkew, err = durationDefault("CALLBACK_MAX_SKEW", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PendingOrderTTL, err = durationDefault("PENDING_ORDER_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = durationDefault("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RequireCallbackTimestamp, err = boolDefault("REQUIRE_CALLBACK_TIMESTAMP", false); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxyHeaders, err = boolDefault("TRUST_PROXY_HEADERS", false); err != nil {
		return Config{}, err
	}

	cfg.TaxRate, err = decimal.NewFromString(getenv("TAX_RATE", "0.13"))
	if err != nil {
		return Config{}, fmt.Errorf("TAX_RATE must be decimal: %w", err)
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must be >= 0")
	}

	cfg.GatewayAllowedIPs, err = ParseAllowList(os.Getenv("GATEWAY_ALLOWED_IPS"))
	if err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GatewaySecretKey == "" {
		return Config{}, fmt.Errorf("ESEWA_SECRET_KEY is required")
	}
	if cfg.GatewaySuccessURL == "" {
		return Config{}, fmt.Errorf("ESEWA_SUCCESS_URL is required")
	}
	if cfg.GatewayFailureURL == "" {
		return Config{}, fmt.Errorf("ESEWA_FAILURE_URL is required")
	}
	//本番は送信元制限なしで動かさない
	if cfg.IsProduction() && len(cfg.GatewayAllowedIPs) == 0 {
		return Config{}, fmt.Errorf("GATEWAY_ALLOWED_IPS is required in production")
	}

	return cfg, nil
}

// "1.2.3.4, 10.0.0.0/8" のような一覧を読む
func ParseAllowList(s string) ([]netip.Prefix, error) {
	out := []netip.Prefix{}
	for _, item := range splitCSV(s) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("GATEWAY_ALLOWED_IPS: invalid prefix %q: %w", item, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("GATEWAY_ALLOWED_IPS: invalid ip %q: %w", item, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func boolDefault(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be bool: %w", key, err)
	}
	return b, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
