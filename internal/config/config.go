package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// 容器格式常量
	AtomHeaderSize    = 8
	LargeAtomHeader   = 16
	GPSRecordMarker   = "GPS "
	GPSRecordHeader   = 0x60 // 二进制头长度，其后是 RMC 语句
	GPSDirectoryEntry = 8    // offset(4) + size(4)
	MaxSentenceLength = 256

	// 单位换算
	KnotsToKmh = 1.852
	MpsToKmh   = 3.6
)

var (
	// 默认配置
	DefaultMaxGap      = 10 * time.Second
	DefaultMaxTime     = 5 * time.Minute
	DefaultMaxDistance = 100.0 // 米
	DefaultMaxDOP      = 20.0
	DefaultMinSpeed    = 5.0 // km/h
	DefaultWorkers     = 2
	MaxWorkers         = 4
	Host               = "0.0.0.0"
	Port               = 8000
)

// Config 全部配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Interpolation InterpolationConfig `mapstructure:"interpolation"`
	Sequence      SequenceConfig      `mapstructure:"sequence"`
	GPS           GPSConfig           `mapstructure:"gps"`
	Cache         CacheConfig         `mapstructure:"cache"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Workers       int                 `mapstructure:"workers"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InterpolationConfig 插值参数
type InterpolationConfig struct {
	MaxGap           time.Duration `mapstructure:"max_gap"`
	CameraYaw        float64       `mapstructure:"camera_yaw"`
	InterpolateTrack bool          `mapstructure:"interpolate_track"`
	FrameOffset      int           `mapstructure:"frame_offset"`
}

// SequenceConfig 分段阈值
type SequenceConfig struct {
	MaxTime     time.Duration `mapstructure:"max_time"`
	MaxDistance float64       `mapstructure:"max_distance"`
	MaxDOP      float64       `mapstructure:"max_dop"`
	MinSpeed    float64       `mapstructure:"min_speed"`
}

// GPSConfig RMC 语句解码
type GPSConfig struct {
	VerifyChecksum bool   `mapstructure:"verify_checksum"`
	DateOrder      string `mapstructure:"date_order"` // yymmdd (行车记录仪) 或 ddmmyy (标准 NMEA)
}

type CacheConfig struct {
	ValkeyAddr string        `mapstructure:"valkey_addr"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: Host, Port: Port},
		Log:    LogConfig{Level: "info", Format: "text"},
		Interpolation: InterpolationConfig{
			MaxGap: DefaultMaxGap,
		},
		Sequence: SequenceConfig{
			MaxTime:     DefaultMaxTime,
			MaxDistance: DefaultMaxDistance,
			MaxDOP:      DefaultMaxDOP,
			MinSpeed:    DefaultMinSpeed,
		},
		GPS:     GPSConfig{DateOrder: "yymmdd"},
		Cache:   CacheConfig{TTL: 24 * time.Hour},
		NATS:    NATSConfig{Subject: "geotag.sequences"},
		Workers: DefaultWorkers,
	}
}

// Load 读取配置文件和环境变量
// 环境变量: GEOTAG_SEQUENCE_MAX_TIME → sequence.max_time
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // 配置文件可选

	v.SetEnvPrefix("GEOTAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("interpolation.max_gap", d.Interpolation.MaxGap)
	v.SetDefault("interpolation.camera_yaw", d.Interpolation.CameraYaw)
	v.SetDefault("interpolation.interpolate_track", d.Interpolation.InterpolateTrack)
	v.SetDefault("interpolation.frame_offset", d.Interpolation.FrameOffset)
	v.SetDefault("sequence.max_time", d.Sequence.MaxTime)
	v.SetDefault("sequence.max_distance", d.Sequence.MaxDistance)
	v.SetDefault("sequence.max_dop", d.Sequence.MaxDOP)
	v.SetDefault("sequence.min_speed", d.Sequence.MinSpeed)
	v.SetDefault("gps.verify_checksum", d.GPS.VerifyChecksum)
	v.SetDefault("gps.date_order", d.GPS.DateOrder)
	v.SetDefault("cache.valkey_addr", d.Cache.ValkeyAddr)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)
	v.SetDefault("workers", d.Workers)
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Interpolation.MaxGap <= 0 {
		errs = append(errs, "interpolation.max_gap must be positive")
	}
	if c.Sequence.MaxTime <= 0 {
		errs = append(errs, "sequence.max_time must be positive")
	}
	if c.Sequence.MaxDistance <= 0 {
		errs = append(errs, "sequence.max_distance must be positive")
	}
	if c.Sequence.MaxDOP < 0 {
		errs = append(errs, "sequence.max_dop must not be negative")
	}
	if o := strings.ToLower(c.GPS.DateOrder); o != "yymmdd" && o != "ddmmyy" {
		errs = append(errs, fmt.Sprintf("gps.date_order must be yymmdd or ddmmyy, got %q", c.GPS.DateOrder))
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, "nats.subject is required when nats.url is set")
	}
	if c.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ClampWorkers 限制并发数 (IO 密集, 过多并发反而更慢)
func ClampWorkers(workers, jobs int) int {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers > jobs {
		workers = jobs
	}
	return workers
}
