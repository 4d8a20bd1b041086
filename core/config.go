package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		Env              string
		Build            string
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address

		Server     ServerConfig
		Database   DatabaseConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		Name          string
		DisableTLS    bool
	}

	// AttendanceConfig holds the institution's gate policy.
	AttendanceConfig struct {
		Location     *time.Location
		OnTimeCutoff ClockTime
		LateCutoff   ClockTime
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration of the current ENV (DEV by default) from the environment,
// after loading `config/.env.<env>` if it exists.
// Required values have no default: a missing or malformed one is reported as a *ConfigurationError.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("app_name", "Asistencia")
	v.SetDefault("build", "develop")
	v.SetDefault("default_from_email", "Asistencia <noreply@localhost>")
	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debug_host", "0.0.0.0:4000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.jwt_expiration_delta", 12*time.Hour)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "asistencia")
	v.SetDefault("database.disable_tls", true)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("test_mode"),
		AppName:        v.GetString("app_name"),
		Env:            env,
		Build:          v.GetString("build"),
		WorkDir:        workDir,
		RollbarToken:   v.GetString("rollbar_token"),
		SendgridApiKey: v.GetString("sendgrid_api_key"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debug_host"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			JWTExpirationDelta: v.GetDuration("server.jwt_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disable_tls"),
		},
	}

	cerr := &ConfigurationError{}
	required := func(key string) string {
		val := CleanString(v.GetString(key))
		if val == "" {
			cerr.add(env, key, "is required")
		}
		return val
	}

	conf.SecretKey = required("secret_key")

	if from, err := mail.ParseAddress(v.GetString("default_from_email")); err != nil {
		cerr.add(env, "default_from_email", err.Error())
	} else {
		conf.DefaultFromEmail = *from
	}

	if tz := required("attendance.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			cerr.add(env, "attendance.timezone", err.Error())
		}
		conf.Attendance.Location = loc
	}
	if s := required("attendance.on_time_cutoff"); s != "" {
		ct, err := ParseClockTime(s)
		if err != nil {
			cerr.add(env, "attendance.on_time_cutoff", err.Error())
		}
		conf.Attendance.OnTimeCutoff = ct
	}
	if s := required("attendance.late_cutoff"); s != "" {
		ct, err := ParseClockTime(s)
		if err != nil {
			cerr.add(env, "attendance.late_cutoff", err.Error())
		}
		conf.Attendance.LateCutoff = ct
	}
	if err := conf.Attendance.Validate(); err != nil && len(cerr.Problems) == 0 {
		return nil, err
	}

	if len(cerr.Problems) > 0 {
		return nil, cerr
	}
	return conf, nil
}

// Validate checks the gate policy is complete and coherent.
func (c AttendanceConfig) Validate() error {
	cerr := &ConfigurationError{}
	if c.Location == nil {
		cerr.Problems = append(cerr.Problems, "attendance timezone is not set")
	}
	if c.OnTimeCutoff.IsZero() {
		cerr.Problems = append(cerr.Problems, "attendance on-time cutoff is not set")
	}
	if c.LateCutoff.Before(c.OnTimeCutoff) {
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("attendance late cutoff %s is before the on-time cutoff %s", c.LateCutoff, c.OnTimeCutoff))
	}
	if len(cerr.Problems) > 0 {
		return cerr
	}
	return nil
}
