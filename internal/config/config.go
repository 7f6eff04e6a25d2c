// Package config merges settings from environment variables, command-line
// flags, and a settings file into one Settings value.
//
// Precedence, highest first: AUTOWEBP_* environment variables, flags,
// the settings file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/daemon"
	"github.com/steveyegge/autowebp/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AUTOWEBP"
	// DefaultFile is read from the working directory when --config is absent.
	DefaultFile = "appsettings.json"

	// SectionConverter holds the watcher and codec keys in the settings file.
	SectionConverter = "AutoWebpConverter"
	// SectionLogging holds the logger keys in the settings file.
	SectionLogging = "Logging"
)

// Keys double as flag names.
const (
	KeyMonitorPath           = "monitor-path"
	KeyIncludeSubdirectories = "include-subdirectories"
	KeyOutputFormat          = "output-format"
	KeyMaximumTries          = "maximum-tries"
	KeyRetryDelay            = "retry-delay"
	KeyQueueSize             = "queue-size"
	KeyFailurePolicy         = "failure-policy"
	KeyJPEGQuality           = "jpeg-quality"
	KeyPNGCompression        = "png-compression"
	KeyLockFile              = "lock-file"
	KeyLogLevel              = "log-level"
	KeyLogFormat             = "log-format"
	KeyLogFile               = "log-file"
	KeyLogMaxSizeMB          = "log-max-size-mb"
	KeyLogMaxBackups         = "log-max-backups"
	KeyLogMaxAgeDays         = "log-max-age-days"
	KeyLogCompress           = "log-compress"
)

// ErrConfigFileNotFound is returned when an explicitly named settings file
// does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindDuration
)

type key struct {
	name    string
	section string
	field   string
	kind    kind
}

var keys = []key{
	{KeyMonitorPath, SectionConverter, "MonitorPath", kindString},
	{KeyIncludeSubdirectories, SectionConverter, "IncludeSubdirectories", kindBool},
	{KeyOutputFormat, SectionConverter, "OutputFormat", kindString},
	{KeyMaximumTries, SectionConverter, "MaximumTries", kindInt},
	{KeyRetryDelay, SectionConverter, "RetryDelay", kindDuration},
	{KeyQueueSize, SectionConverter, "QueueSize", kindInt},
	{KeyFailurePolicy, SectionConverter, "FailurePolicy", kindString},
	{KeyJPEGQuality, SectionConverter, "JpegQuality", kindInt},
	{KeyPNGCompression, SectionConverter, "PngCompression", kindString},
	{KeyLockFile, SectionConverter, "LockFile", kindString},
	{KeyLogLevel, SectionLogging, "Level", kindString},
	{KeyLogFormat, SectionLogging, "Format", kindString},
	{KeyLogFile, SectionLogging, "File", kindString},
	{KeyLogMaxSizeMB, SectionLogging, "MaxSizeMB", kindInt},
	{KeyLogMaxBackups, SectionLogging, "MaxBackups", kindInt},
	{KeyLogMaxAgeDays, SectionLogging, "MaxAgeDays", kindInt},
	{KeyLogCompress, SectionLogging, "Compress", kindBool},
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Settings is the merged configuration.
type Settings struct {
	MonitorPath           string
	IncludeSubdirectories bool
	OutputFormat          string
	MaximumTries          int
	RetryDelay            time.Duration
	QueueSize             int
	FailurePolicy         string
	JPEGQuality           int
	PNGCompression        string
	LockFile              string

	Log LogSettings

	// Source is the settings file that was read, empty if none.
	Source string
}

// LogSettings configures internal/logging.
type LogSettings struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func setDefaults(v *viper.Viper) {
	d := daemon.DefaultConfig()
	c := codec.DefaultOptions()

	v.SetDefault(KeyMonitorPath, "")
	v.SetDefault(KeyIncludeSubdirectories, false)
	v.SetDefault(KeyOutputFormat, d.OutputFormat)
	v.SetDefault(KeyMaximumTries, d.MaximumTries)
	v.SetDefault(KeyRetryDelay, d.RetryDelay)
	v.SetDefault(KeyQueueSize, d.QueueSize)
	v.SetDefault(KeyFailurePolicy, d.FailurePolicy)
	v.SetDefault(KeyJPEGQuality, c.JPEGQuality)
	v.SetDefault(KeyPNGCompression, "none")
	v.SetDefault(KeyLockFile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
	v.SetDefault(KeyLogCompress, false)
}

// BindFlags registers one flag per command-line settable key on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := daemon.DefaultConfig()

	fs.String(KeyMonitorPath, "", "directory to watch for new WebP files")
	fs.Bool(KeyIncludeSubdirectories, false, "also watch subdirectories")
	fs.String(KeyOutputFormat, d.OutputFormat, "output format (png or jpg)")
	fs.Int(KeyMaximumTries, d.MaximumTries, "conversion attempts per file")
	fs.Duration(KeyRetryDelay, d.RetryDelay, "pause between attempts")
	fs.Int(KeyQueueSize, d.QueueSize, "detected files that may wait for conversion")
	fs.String(KeyFailurePolicy, d.FailurePolicy, "on exhausted retries: isolate or exit")
	fs.Int(KeyJPEGQuality, codec.DefaultOptions().JPEGQuality, "JPEG quality (1-100)")
	fs.String(KeyPNGCompression, "none", "PNG compression (none, fast, default, best)")
	fs.String(KeyLockFile, "", "single-instance lock file (default: derived from the monitor path)")
	fs.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	fs.String(KeyLogFormat, "auto", "console log format (auto, text, json)")
	fs.String(KeyLogFile, "", "also write JSON logs to this rotating file")
}

// Load merges defaults, the settings file at path, flags from fs and the
// environment. An empty path means DefaultFile. A missing file is an error
// only when explicit is true. fs may be nil.
func Load(fs *pflag.FlagSet, path string, explicit bool) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultFile
	}

	source, err := mergeFile(v, path, explicit)
	if err != nil {
		return Settings{}, err
	}

	if fs != nil {
		for _, k := range keys {
			if f := fs.Lookup(k.name); f != nil {
				if err := v.BindPFlag(k.name, f); err != nil {
					return Settings{}, fmt.Errorf("bind flag %s: %w", k.name, err)
				}
			}
		}
	}

	if err := applyEnv(v); err != nil {
		return Settings{}, err
	}

	return Settings{
		MonitorPath:           v.GetString(KeyMonitorPath),
		IncludeSubdirectories: v.GetBool(KeyIncludeSubdirectories),
		OutputFormat:          v.GetString(KeyOutputFormat),
		MaximumTries:          v.GetInt(KeyMaximumTries),
		RetryDelay:            v.GetDuration(KeyRetryDelay),
		QueueSize:             v.GetInt(KeyQueueSize),
		FailurePolicy:         v.GetString(KeyFailurePolicy),
		JPEGQuality:           v.GetInt(KeyJPEGQuality),
		PNGCompression:        v.GetString(KeyPNGCompression),
		LockFile:              v.GetString(KeyLockFile),
		Log: LogSettings{
			Level:      normalizeLevel(v.GetString(KeyLogLevel)),
			Format:     v.GetString(KeyLogFormat),
			File:       v.GetString(KeyLogFile),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
			MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
			Compress:   v.GetBool(KeyLogCompress),
		},
		Source: source,
	}, nil
}

// mergeFile reads the sectioned settings file and merges the keys it sets
// into v. The file type follows its extension; no extension means JSON.
func mergeFile(v *viper.Viper, path string, explicit bool) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return "", nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return "", fmt.Errorf("stat config file: %w", err)
	}

	file := viper.New()
	file.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		file.SetConfigType("json")
	}
	if err := file.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %s: %w", path, err)
	}

	values := make(map[string]any)
	for _, k := range keys {
		fileKey := strings.ToLower(k.section + "." + k.field)
		if file.IsSet(fileKey) {
			values[k.name] = file.Get(fileKey)
		}
	}

	// Hosting-style files carry Logging.LogLevel.Default instead of Level.
	if _, ok := values[KeyLogLevel]; !ok && file.IsSet("logging.loglevel.default") {
		values[KeyLogLevel] = file.GetString("logging.loglevel.default")
	}

	if err := v.MergeConfigMap(values); err != nil {
		return "", fmt.Errorf("merge config file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return abs, nil
}

// applyEnv sets every AUTOWEBP_* variable present in the environment.
// Set values outrank flags in viper, which gives the environment the
// highest precedence.
func applyEnv(v *viper.Viper) error {
	for _, k := range keys {
		name := EnvName(k.name)
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		value, err := parseEnv(raw, k.kind)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", daemon.ErrConfigurationInvalid, name, err)
		}
		v.Set(k.name, value)
	}
	return nil
}

func parseEnv(raw string, k kind) (any, error) {
	raw = strings.TrimSpace(raw)
	switch k {
	case kindBool:
		return strconv.ParseBool(raw)
	case kindInt:
		return strconv.Atoi(raw)
	case kindDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

// normalizeLevel maps hosting-style level names onto internal/logging names.
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "debug"
	case "information":
		return "info"
	case "warning":
		return "warn"
	case "critical":
		return "error"
	default:
		return strings.ToLower(strings.TrimSpace(level))
	}
}

// Validate checks the ambient settings. Core watcher settings are checked
// by daemon.New.
func (s Settings) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(s.Log.Format) {
		errs = append(errs, fmt.Errorf("log format: unsupported value %q", s.Log.Format))
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d out of range 1-100", s.JPEGQuality))
	}
	if _, err := codec.ParsePNGCompression(s.PNGCompression); err != nil {
		errs = append(errs, err)
	}
	if s.Log.MaxSizeMB < 0 || s.Log.MaxBackups < 0 || s.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", daemon.ErrConfigurationInvalid, err)
	}
	return nil
}

// DaemonConfig returns the daemon portion of the settings.
func (s Settings) DaemonConfig() daemon.Config {
	return daemon.Config{
		MonitorPath:           s.MonitorPath,
		IncludeSubdirectories: s.IncludeSubdirectories,
		OutputFormat:          s.OutputFormat,
		MaximumTries:          s.MaximumTries,
		RetryDelay:            s.RetryDelay,
		QueueSize:             s.QueueSize,
		FailurePolicy:         s.FailurePolicy,
		LockPath:              s.LockFile,
	}
}

// CodecOptions returns the encoder options.
func (s Settings) CodecOptions() (codec.Options, error) {
	level, err := codec.ParsePNGCompression(s.PNGCompression)
	if err != nil {
		return codec.Options{}, err
	}
	return codec.Options{JPEGQuality: s.JPEGQuality, PNGCompression: level}, nil
}

// LoggingOptions returns the logger options.
func (s Settings) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      s.Log.Level,
		Format:     s.Log.Format,
		File:       s.Log.File,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Compress:   s.Log.Compress,
	}
}
