package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Remote storage engines
const (
	RemoteEnginePostgres = "postgres"
	RemoteEngineDummy    = "dummy"
)

type (
	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string // verifies session tokens
		RollbarToken string
		Server       ServerConfig
		Local        LocalConfig
		Remote       RemoteConfig
		Sync         SyncConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	LocalConfig struct {
		Path string // sqlite file; empty means in-memory
	}

	RemoteConfig struct {
		Engine        string // "" (no remote), "postgres" or "dummy"
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
	}

	SyncConfig struct {
		SweepInterval time.Duration
	}
)

// Address returns the "host:port" of the remote database.
func (rc RemoteConfig) Address() string {
	return net.JoinHostPort(rc.Host, rc.Port)
}

// Configured reports whether a remote store should be used at all.
func (rc RemoteConfig) Configured() bool {
	return rc.Engine == RemoteEngineDummy || (rc.Engine == RemoteEnginePostgres && rc.Host != "")
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the ENV name (DEV by default): DEV_DEBUG, DEV_REMOTE_HOST, ...
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "EagleEye")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "j2v@8r$k-ly0w6+e%cxq#3h!t_5n9zaf(m7s)g1p=du4b")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("local.path", filepath.Join(DataDir(), "eagleeye.db"))
	conf.SetDefault("remote.engine", "")
	conf.SetDefault("remote.host", "")
	conf.SetDefault("remote.port", "5432")
	conf.SetDefault("remote.user", "eagleeye")
	conf.SetDefault("remote.password", "")
	conf.SetDefault("remote.adminUser", "")
	conf.SetDefault("remote.adminPassword", "")
	conf.SetDefault("remote.name", "eagleeye")
	conf.SetDefault("remote.disableTLS", false)
	conf.SetDefault("sync.sweepInterval", time.Minute)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("local.path", "")
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
		},
		Local: LocalConfig{
			Path: conf.GetString("local.path"),
		},
		Remote: RemoteConfig{
			Engine:        strings.ToLower(conf.GetString("remote.engine")),
			Host:          conf.GetString("remote.host"),
			Port:          conf.GetString("remote.port"),
			User:          conf.GetString("remote.user"),
			Password:      conf.GetString("remote.password"),
			AdminUser:     conf.GetString("remote.adminUser"),
			AdminPassword: conf.GetString("remote.adminPassword"),
			Name:          conf.GetString("remote.name"),
			DisableTLS:    conf.GetBool("remote.disableTLS"),
		},
		Sync: SyncConfig{
			SweepInterval: conf.GetDuration("sync.sweepInterval"),
		},
	}
}
