package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Options controls where Load looks for the config file.
type Options struct {
	// File is an explicit config path; empty means search the default locations.
	File string
}

// Load reads defaults, then sbnode.yaml, then SBNODE_* environment variables.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("sbnode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sbnode/")
	}

	v.SetEnvPrefix("SBNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path that does not exist is an error; a missing default file is not.
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.config", "/etc/sing-box/config.json")
	v.SetDefault("paths.keys", "/etc/sing-box/cert/keys.json")
	v.SetDefault("paths.node_names", "/etc/sing-box/node_names.json")
	v.SetDefault("paths.cert_dir", "/etc/sing-box/cert")
	v.SetDefault("paths.qrcode_dir", "/tmp/qrcode")
	v.SetDefault("paths.lock", "/etc/sing-box/.sbnode.lock")

	v.SetDefault("server.host", "")
	v.SetDefault("server.ip_lookup_url", "https://api.ipify.org")
	v.SetDefault("server.ip_cache_ttl", "10m")

	v.SetDefault("defaults.vless_port", 18890)
	v.SetDefault("defaults.hysteria2_port", 443)
	v.SetDefault("defaults.server_name", "www.speedtest.net")
	v.SetDefault("defaults.fingerprint", "chrome")
	v.SetDefault("defaults.flow", "xtls-rprx-vision")
	v.SetDefault("defaults.secret_length", 16)
	v.SetDefault("defaults.up_mbps", 1000)
	v.SetDefault("defaults.down_mbps", 1000)
	v.SetDefault("defaults.obfs_password", "")
	v.SetDefault("defaults.insecure", true)

	v.SetDefault("keygen.mode", "auto")
	v.SetDefault("keygen.singbox_path", "sing-box")

	v.SetDefault("service.init", "auto")
	v.SetDefault("service.name", "sing-box")

	v.SetDefault("firewall.backend", "ufw")
	v.SetDefault("firewall.nft_table", "sbnode_filter")
	v.SetDefault("firewall.ssh_port", 22)
	v.SetDefault("firewall.close_empty_listeners", true)

	v.SetDefault("timeouts.collaborator", "60s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("metrics.textfile", "")
}

// Validate rejects settings that would produce a broken node config.
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"defaults.vless_port":     c.Defaults.VLESSPort,
		"defaults.hysteria2_port": c.Defaults.Hysteria2Port,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: %d is not a valid port", name, port))
		}
	}
	if c.Defaults.VLESSPort == c.Defaults.Hysteria2Port {
		errs = append(errs, fmt.Errorf("defaults: vless_port and hysteria2_port must differ"))
	}
	if c.Defaults.SecretLength < 8 {
		errs = append(errs, fmt.Errorf("defaults.secret_length: must be at least 8"))
	}
	if c.Defaults.ServerName == "" {
		errs = append(errs, fmt.Errorf("defaults.server_name: required"))
	}
	switch c.Keygen.Mode {
	case "auto", "singbox", "native":
	default:
		errs = append(errs, fmt.Errorf("keygen.mode: unknown mode %q", c.Keygen.Mode))
	}
	switch c.Firewall.Backend {
	case "ufw", "nftables", "none":
	default:
		errs = append(errs, fmt.Errorf("firewall.backend: unknown backend %q", c.Firewall.Backend))
	}
	if c.Timeouts.Collaborator <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.collaborator: must be positive"))
	}
	if c.Paths.Config == "" || c.Paths.Keys == "" || c.Paths.NodeNames == "" {
		errs = append(errs, fmt.Errorf("paths: config, keys and node_names are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
