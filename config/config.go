package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mail     MailConfig     `mapstructure:"mail"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Report   ReportConfig   `mapstructure:"report"`
	Job      JobConfig      `mapstructure:"job"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// SecureCookie 对外地址为 https 时 Cookie 仅通过 HTTPS 发送
func (c *ServerConfig) SecureCookie() bool {
	return strings.HasPrefix(strings.ToLower(c.BaseURL), "https://")
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault  time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
}

// MailConfig SMTP 邮件配置
type MailConfig struct {
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	AdminTo  []string `mapstructure:"admin_to"` // 管理员收件人（提醒、月报、新申请通知）
}

// Enabled SMTP 主机为空时邮件功能降级为仅记录日志
func (c *MailConfig) Enabled() bool {
	return c.SMTPHost != ""
}

// CalendarConfig 共享日历（Google Calendar）配置
type CalendarConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	CalendarID          string        `mapstructure:"calendar_id"`
	CredentialsFile     string        `mapstructure:"credentials_file"`
	ServiceAccountEmail string        `mapstructure:"service_account_email"` // 期望的凭据身份，用于权限错误诊断
	SyncDelay           time.Duration `mapstructure:"sync_delay"`            // 批量同步时两次外部调用之间的固定间隔
}

// ReportConfig 报表与提醒配置
type ReportConfig struct {
	Timezone         string        `mapstructure:"timezone"`
	MonthlyDay       int           `mapstructure:"monthly_day"` // 每月第几天发送上月汇总
	ReminderAfter    time.Duration `mapstructure:"reminder_after"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
}

// Location 加载报表时区；Validate 已保证可加载
func (c *ReportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// JobConfig 后台任务配置
type JobConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "vacations")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Europe/Paris")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "vacations@localhost")
	v.SetDefault("mail.admin_to", []string{})

	v.SetDefault("calendar.enabled", false)
	v.SetDefault("calendar.calendar_id", "")
	v.SetDefault("calendar.credentials_file", "")
	v.SetDefault("calendar.service_account_email", "")
	v.SetDefault("calendar.sync_delay", "250ms")

	v.SetDefault("report.timezone", "Europe/Paris")
	v.SetDefault("report.monthly_day", 1)
	v.SetDefault("report.reminder_after", "48h")
	v.SetDefault("report.reminder_interval", "24h")

	v.SetDefault("job.enabled", true)
	v.SetDefault("job.interval", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("VACATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: report.timezone %q 无效: %w", c.Report.Timezone, err)
	}
	if c.Report.MonthlyDay < 1 || c.Report.MonthlyDay > 28 {
		return fmt.Errorf("配置校验失败: report.monthly_day 必须在 1-28 之间")
	}
	if c.Calendar.Enabled && c.Calendar.CalendarID == "" {
		return fmt.Errorf("配置校验失败: 启用日历同步时 calendar.calendar_id 不能为空")
	}
	return nil
}
