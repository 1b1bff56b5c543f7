package config

import (
	"flag"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App   `yaml:"app"`
		HTTP  `yaml:"http"`
		Log   `yaml:"logger"`
		PG    `yaml:"postgres"`
		Redis `yaml:"redis"`
		Ring  `yaml:"ring"`
		Agent `yaml:"agent"`
	}

	App struct {
		Env     string `yaml:"env"     env-default:"local"`
		Name    string `yaml:"name"    env-default:"ring-go"`
		Version string `yaml:"version" env-required:"true" env:"APP_VERSION"`
	}

	HTTP struct {
		IP         string        `yaml:"ip"           env-default:"0.0.0.0"`
		Port       string        `yaml:"port"         env-default:"8082"`
		Timeout    time.Duration `yaml:"timeout"      env-default:"4s"`
		IdleTimout time.Duration `yaml:"idle_timeout" env-default:"60s"`
		// Users maps basic-auth usernames to passwords. A household
		// deployment has no identity provider behind it.
		Users map[string]string `yaml:"users"`
		CORS  struct {
			AllowedMethods     []string `yaml:"allowed_methods"`
			AllowedOrigins     []string `yaml:"allowed_origins"`
			AllowCredentials   bool     `yaml:"allow_credentials"`
			AllowedHeaders     []string `yaml:"allowed_headers"`
			OptionsPassthrough bool     `yaml:"options_passthrough"`
			ExposedHeaders     []string `yaml:"exposed_headers"`
			Debug              bool     `yaml:"debug"`
		} `yaml:"cors"`
	}

	Log struct {
		Level string `yaml:"log_level" env-required:"true" env:"LOG_LEVEL"`
	}

	PG struct {
		PoolMax int    `yaml:"pool_max" env-default:"2"`
		URL     string `                env-required:"true" env:"PG_URL"`
	}

	Redis struct {
		Addr     string `yaml:"addr"     env-default:"localhost:6379" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db"       env-default:"0"`
	}

	// Ring carries the trigger protocol parameters. The reference behavior
	// is a 60s probe cadence, a 2m duplicate-trigger window, a 5s ring
	// interval and auto-dismiss after 3 rings.
	Ring struct {
		ProbeInterval     time.Duration `yaml:"probe_interval"     env-default:"60s"`
		IdempotencyWindow time.Duration `yaml:"idempotency_window" env-default:"2m"`
		RingInterval      time.Duration `yaml:"ring_interval"      env-default:"5s"`
		MaxRingCount      int           `yaml:"max_ring_count"     env-default:"3"`
	}

	// Agent configures the device-side binary only; the service ignores it.
	Agent struct {
		ServerURL string `yaml:"server_url" env-default:"http://localhost:8082" env:"AGENT_SERVER_URL"`
		User      string `yaml:"user"       env:"AGENT_USER"`
		Password  string `yaml:"password"   env:"AGENT_PASSWORD"`
		RoomID    string `yaml:"room_id"    env:"AGENT_ROOM_ID"`
		SoundPath string `yaml:"sound_path" env:"AGENT_SOUND_PATH"`
	}
)

const (
	EnvConfigPathName  = "CONFIG-PATH"
	FlagConfigPathName = "config"
)

var (
	configPath string
	instance   *Config
	once       sync.Once
)

// GetConfig returns app configs.
func GetConfig() *Config {
	once.Do(func() {
		flag.StringVar(
			&configPath,
			FlagConfigPathName,
			"./configs/config.yml",
			"this is app config file",
		)
		flag.Parse()

		log.Print("config init")

		if configPath == "" {
			configPath = os.Getenv(EnvConfigPathName)
		}

		if configPath == "" {
			log.Fatal("config path is required")
		}

		instance = &Config{}

		if err := cleanenv.ReadConfig(configPath, instance); err != nil {
			helpText := "Ring-Go - Shared Alarm Coordination Service"
			help, _ := cleanenv.GetDescription(instance, &helpText)
			log.Print(help)
			log.Fatal(err)
		}
	})
	return instance
}
