package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/creamcroissant/sbnode/internal/initsys"
)

// Config 汇总 sbnode 的全部配置。
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	Keygen   KeygenConfig   `mapstructure:"keygen" yaml:"keygen"`
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Firewall FirewallConfig `mapstructure:"firewall" yaml:"firewall"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// PathsConfig 定义 sing-box 配置与附属文件的位置。
type PathsConfig struct {
	Config    string `mapstructure:"config" yaml:"config"`
	Keys      string `mapstructure:"keys" yaml:"keys"`
	NodeNames string `mapstructure:"node_names" yaml:"node_names"`
	CertDir   string `mapstructure:"cert_dir" yaml:"cert_dir"`
	QRCodeDir string `mapstructure:"qrcode_dir" yaml:"qrcode_dir"`
	Lock      string `mapstructure:"lock" yaml:"lock"`
}

// ServerConfig 定义分享链接里的服务器地址。
type ServerConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	IPLookupURL string        `mapstructure:"ip_lookup_url" yaml:"ip_lookup_url"`
	IPCacheTTL  time.Duration `mapstructure:"ip_cache_ttl" yaml:"ip_cache_ttl"`
}

// DefaultsConfig 是创建配置时使用的默认值。
type DefaultsConfig struct {
	VLESSPort     int    `mapstructure:"vless_port" yaml:"vless_port"`
	Hysteria2Port int    `mapstructure:"hysteria2_port" yaml:"hysteria2_port"`
	ServerName    string `mapstructure:"server_name" yaml:"server_name"`
	Fingerprint   string `mapstructure:"fingerprint" yaml:"fingerprint"`
	Flow          string `mapstructure:"flow" yaml:"flow"`
	SecretLength  int    `mapstructure:"secret_length" yaml:"secret_length"`
	UpMbps        int    `mapstructure:"up_mbps" yaml:"up_mbps"`
	DownMbps      int    `mapstructure:"down_mbps" yaml:"down_mbps"`
	ObfsPassword  string `mapstructure:"obfs_password" yaml:"obfs_password"`
	Insecure      bool   `mapstructure:"insecure" yaml:"insecure"`
}

// KeygenConfig 选择 Reality 密钥对的生成方式。
type KeygenConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`
	SingBoxPath string `mapstructure:"singbox_path" yaml:"singbox_path"`
}

// ServiceConfig 定义 sing-box 服务的管理方式。
type ServiceConfig struct {
	Init   string                 `mapstructure:"init" yaml:"init"`
	Name   string                 `mapstructure:"name" yaml:"name"`
	Custom initsys.CustomCommands `mapstructure:"custom" yaml:"custom"`
}

// InitConfig converts to the initsys configuration.
func (s ServiceConfig) InitConfig() initsys.Config {
	return initsys.Config{Type: s.Init, ServiceName: s.Name, Custom: s.Custom}
}

type FirewallConfig struct {
	Backend             string `mapstructure:"backend" yaml:"backend"`
	NFTTable            string `mapstructure:"nft_table" yaml:"nft_table"`
	SSHPort             int    `mapstructure:"ssh_port" yaml:"ssh_port"`
	CloseEmptyListeners bool   `mapstructure:"close_empty_listeners" yaml:"close_empty_listeners"`
}

type TimeoutsConfig struct {
	Collaborator time.Duration `mapstructure:"collaborator" yaml:"collaborator"`
}

// LogConfig 定义日志配置。
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig 定义 Prometheus textfile 导出。
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
