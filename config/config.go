package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/treemana/dnstun/upstream"
)

const DefaultPath = "dnstun.yaml"

// modes accepted in the configuration file
const (
	ModeUDP          = "udp"
	ModePlain        = "plain"
	ModeTCP          = "tcp"
	ModeTLS          = "tls"
	ModeTunnelClient = "tunnel-client"
	ModeTunnelServer = "tunnel-server"
	ModeServer       = "server"
)

type Config struct {
	// Mode picks the listener and upstream transport pair, see Transport.
	Mode string `yaml:"mode" validate:"required,oneof=udp plain tcp tls tunnel-client tunnel-server server"`

	Log struct {
		On         bool   `yaml:"on"` // report every query and response
		Dump       bool   `yaml:"dump"`
		File       string `yaml:"file"`
		STDOUT     bool   `yaml:"stdout"`
		Verbose    bool   `yaml:"verbose"`
		JSON       bool   `yaml:"json"`
		MaxAge     int    `yaml:"max_age" validate:"gte=0"`
		MaxSize    int    `yaml:"max_size" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	} `yaml:"log"`

	Server struct {
		Address      string `yaml:"address" validate:"required,hostname_port"`
		TCP          bool   `yaml:"tcp"`
		ReplyFromDst bool   `yaml:"reply_from_dst"`
		MaxInflight  int    `yaml:"max_inflight" validate:"gte=0"`
	} `yaml:"server"`

	Upstream struct {
		Address    string        `yaml:"address" validate:"required"`
		Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
		ServerName string        `yaml:"server_name"`
	} `yaml:"upstream"`

	Admin struct {
		Address string `yaml:"address" validate:"omitempty,hostname_port"`
	} `yaml:"admin"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// report fields by their yaml names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	c := &Config{Mode: ModeUDP}
	c.Log.STDOUT = true
	c.Log.MaxAge = 2
	c.Log.MaxSize = 10
	c.Log.MaxBackups = 100
	c.Server.Address = "127.0.0.1:53"
	c.Server.MaxInflight = 1024
	c.Upstream.Address = "1.1.1.1:53"
	c.Upstream.Timeout = 5 * time.Second
	return c
}

// Load reads the yaml file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.Mode = strings.ToLower(c.Mode)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Server.TCP && c.Cipher() {
			return errors.New("server.tcp: not available in tunnel server mode")
		}
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	var sb strings.Builder
	sb.WriteString("invalid config:")
	for _, e := range ve {
		// strip the root struct name
		path := e.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		fmt.Fprintf(&sb, " %s failed %s", path, e.Tag())
		if e.Param() != "" {
			fmt.Fprintf(&sb, "=%s", e.Param())
		}
		sb.WriteByte(';')
	}
	return errors.New(sb.String())
}

// Cipher reports whether the listener receives tunnel traffic.
func (c *Config) Cipher() bool {
	return c.Mode == ModeTunnelServer || c.Mode == ModeServer
}

// Transport returns the upstream transport of the configured mode.
func (c *Config) Transport() upstream.Mode {
	switch c.Mode {
	case ModeTCP:
		return upstream.ModeTCP
	case ModeTLS:
		return upstream.ModeTLS
	case ModeTunnelClient:
		return upstream.ModeTunnel
	default:
		return upstream.ModeUDP
	}
}
