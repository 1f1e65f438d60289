package logger

import (
	"io"
	"os"

	"github.com/spf13/cast"
)

// Options configures a Logger.
type Options struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // explicit destination; overrides stdout/file selection
	ServiceName string

	// Environment is local, dev or prod. Anything but local also writes to File.
	Environment string
	File        string
	FileOnly    bool

	// lumberjack rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions returns options for a local JSON logger on stdout.
func DefaultOptions() Options {
	return Options{
		Level:       "info",
		Format:      "json",
		ServiceName: "petmatch",
		Environment: "local",
		File:        "/var/log/petmatch/app.log",
		MaxSizeMB:   100,
		MaxBackups:  7,
		MaxAgeDays:  30,
		Compress:    true,
	}
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, SERVICE_NAME, APP_ENV, LOG_FILE,
// LOG_FILE_ONLY, LOG_MAX_SIZE, LOG_MAX_BACKUPS, LOG_MAX_AGE and LOG_COMPRESS
// on top of DefaultOptions. Unparsable values keep the default.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	o.Level = envString("LOG_LEVEL", o.Level)
	o.Format = envString("LOG_FORMAT", o.Format)
	o.ServiceName = envString("SERVICE_NAME", o.ServiceName)
	o.Environment = envString("APP_ENV", o.Environment)
	o.File = envString("LOG_FILE", o.File)
	o.FileOnly = envBool("LOG_FILE_ONLY", o.FileOnly)
	o.MaxSizeMB = envInt("LOG_MAX_SIZE", o.MaxSizeMB)
	o.MaxBackups = envInt("LOG_MAX_BACKUPS", o.MaxBackups)
	o.MaxAgeDays = envInt("LOG_MAX_AGE", o.MaxAgeDays)
	o.Compress = envBool("LOG_COMPRESS", o.Compress)
	return o
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}
