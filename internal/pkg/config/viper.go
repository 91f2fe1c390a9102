package config

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrConfigType is returned by NewViperFromBytes when no format is given.
var ErrConfigType = errors.New("config type is required")

// Viper is a Config implementation backed by github.com/spf13/viper.
type Viper struct {
	v *viper.Viper
}

// NewViper loads the file at pathFile and reloads it whenever it changes.
// Environment variables override file values, with dots in key names
// replaced by underscores (relay.host -> RELAY_HOST).
//
// The format is inferred from the file extension.
func NewViper(pathFile string) (*Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(filepath.Clean(pathFile))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			slog.Error("config reload failed", "path", e.Name, "err", err)
			return
		}
		slog.Info("config success reloaded", "path", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()

	return &Viper{v: v}, nil
}

// NewViperFromBytes loads configuration held in memory. configType is a
// format supported by viper such as "yaml", "json" or "toml".
func NewViperFromBytes(configType string, data []byte) (*Viper, error) {
	configType = strings.TrimSpace(configType)
	if configType == "" {
		return nil, ErrConfigType
	}

	v := viper.New()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return &Viper{v: v}, nil
}

func (vc *Viper) GetInt(key string) int         { return vc.v.GetInt(key) }
func (vc *Viper) GetInt64(key string) int64     { return vc.v.GetInt64(key) }
func (vc *Viper) GetBool(key string) bool       { return vc.v.GetBool(key) }
func (vc *Viper) GetFloat64(key string) float64 { return vc.v.GetFloat64(key) }
func (vc *Viper) GetString(key string) string   { return vc.v.GetString(key) }

func (vc *Viper) GetMillisecond(key string) time.Duration { return vc.duration(key, time.Millisecond) }
func (vc *Viper) GetSecond(key string) time.Duration      { return vc.duration(key, time.Second) }
func (vc *Viper) GetMinute(key string) time.Duration      { return vc.duration(key, time.Minute) }

// duration reads key as an integer count of unit.
func (vc *Viper) duration(key string, unit time.Duration) time.Duration {
	return time.Duration(vc.v.GetInt64(key)) * unit
}

// GetArray returns the value for key as a list. Scalars are split on commas
// and each element is trimmed; empty elements are dropped.
func (vc *Viper) GetArray(key string) []string {
	raw := vc.v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}

	out := lo.Compact(lo.Map(cast.ToStringSlice(raw), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	if len(out) == 0 {
		return nil
	}
	return out
}

// Close satisfies io.Closer; viper holds no resources.
func (vc *Viper) Close() error {
	return nil
}
