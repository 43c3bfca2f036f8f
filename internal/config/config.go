// Package config loads the coop controller configuration from YAML.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// COOP_* environment overrides. The result is validated once and passed by
// pointer to the components that need it; nothing rewrites it at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Door     DoorConfig     `yaml:"door"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Button   ButtonConfig   `yaml:"button"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig holds the coop location used for sunrise/sunset calculation.
type SiteConfig struct {
	Latitude float64 `yaml:"latitude"`
	Timezone string  `yaml:"timezone"`
}

// Location resolves the configured timezone. An empty timezone means local time.
func (s SiteConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// GPIOConfig describes the wiring. Offsets are BCM line numbers on Chip.
type GPIOConfig struct {
	Chip         string `yaml:"chip"`
	Motor        int    `yaml:"motor"`
	Direction    int    `yaml:"direction"`
	IndoorLight  int    `yaml:"indoor_light"`
	OutdoorLight int    `yaml:"outdoor_light"`
	UpperReed    int    `yaml:"upper_reed"`
	LowerReed    int    `yaml:"lower_reed"`
	Button       int    `yaml:"button"`

	// RelayOnLevel is the output level that energizes a relay.
	RelayOnLevel int `yaml:"relay_on_level"`
	// ContactClosedLevel is the input level of a closed reed contact.
	ContactClosedLevel int `yaml:"contact_closed_level"`
	// DirectionUpLevel is the direction relay level that moves the door up.
	DirectionUpLevel int `yaml:"direction_up_level"`
	// ButtonPressedLevel is the input level of a pressed shutdown button.
	ButtonPressedLevel int `yaml:"button_pressed_level"`
}

// DoorConfig holds motor timing and contact sampling settings.
type DoorConfig struct {
	MoveUpTime         time.Duration `yaml:"move_up_time"`
	MoveDownTime       time.Duration `yaml:"move_down_time"`
	UpperContactOffset time.Duration `yaml:"upper_contact_offset"`
	LowerContactOffset time.Duration `yaml:"lower_contact_offset"`
	ContactSamples     int           `yaml:"contact_samples"`
	ContactThreshold   int           `yaml:"contact_threshold"`
	SampleInterval     time.Duration `yaml:"sample_interval"`
	StateFile          string        `yaml:"state_file"`
}

// ScheduleConfig drives the automatic door and light schedule.
type ScheduleConfig struct {
	SunriseInterval      time.Duration     `yaml:"sunrise_interval"`
	DoorCheckInterval    time.Duration     `yaml:"door_check_interval"`
	AutomaticOffTime     time.Duration     `yaml:"automatic_off_time"`
	DawnOffset           time.Duration     `yaml:"dawn_offset"`
	DuskOffset           time.Duration     `yaml:"dusk_offset"`
	EarliestOpen         map[string]string `yaml:"earliest_open"`
	LightOnBeforeClosing time.Duration     `yaml:"light_on_before_closing"`
	LightOffAfterClosing time.Duration     `yaml:"light_off_after_closing"`
	SensorInterval       time.Duration     `yaml:"sensor_interval"`
}

// SensorsConfig configures the PCF8591 analog sensor board.
type SensorsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
	Samples int    `yaml:"samples"`
}

// ButtonConfig configures the shutdown button.
type ButtonConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Debounce      time.Duration `yaml:"debounce"`
	RebootAfter   time.Duration `yaml:"reboot_after"`
	ShutdownAfter time.Duration `yaml:"shutdown_after"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig configures the RPC/status server.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	MaxWaitTimeout time.Duration `yaml:"max_wait_timeout"`
}

// HistoryConfig configures the SQLite move/reading log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration for the reference coop wiring.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Latitude: 51.138904,
			Timezone: "Europe/Berlin",
		},
		GPIO: GPIOConfig{
			Chip:               "gpiochip0",
			Motor:              21,
			Direction:          20,
			IndoorLight:        16,
			OutdoorLight:       6,
			UpperReed:          27,
			LowerReed:          17,
			Button:             5,
			RelayOnLevel:       0,
			ContactClosedLevel: 0,
			DirectionUpLevel:   1,
			ButtonPressedLevel: 0,
		},
		Door: DoorConfig{
			MoveUpTime:         7300 * time.Millisecond,
			MoveDownTime:       6 * time.Second,
			UpperContactOffset: 200 * time.Millisecond,
			LowerContactOffset: 500 * time.Millisecond,
			ContactSamples:     15,
			ContactThreshold:   5,
			SampleInterval:     50 * time.Millisecond,
			StateFile:          "/var/lib/coop-controller/board.json",
		},
		Schedule: ScheduleConfig{
			SunriseInterval:   7000 * time.Second,
			DoorCheckInterval: time.Minute,
			AutomaticOffTime:  30 * time.Minute,
			DawnOffset:        -30 * time.Minute,
			DuskOffset:        15 * time.Minute,
			EarliestOpen: map[string]string{
				"monday":    "05:30",
				"tuesday":   "05:30",
				"wednesday": "05:30",
				"thursday":  "05:30",
				"friday":    "05:30",
				"saturday":  "07:30",
				"sunday":    "07:30",
			},
			LightOnBeforeClosing: 0,
			LightOffAfterClosing: time.Minute,
			SensorInterval:       5 * time.Minute,
		},
		Sensors: SensorsConfig{
			Enabled: false,
			Bus:     "",
			Address: 0x48,
			Samples: 10,
		},
		Button: ButtonConfig{
			Enabled:       true,
			PollInterval:  50 * time.Millisecond,
			Debounce:      200 * time.Millisecond,
			RebootAfter:   2 * time.Second,
			ShutdownAfter: 6 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "coop-controller",
			TopicPrefix: "coop",
			BufferSize:  100,
		},
		HTTP: HTTPConfig{
			Addr:           ":8010",
			WaitTimeout:    30 * time.Second,
			MaxWaitTimeout: 5 * time.Minute,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "/var/lib/coop-controller/history.db",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies COOP_SECTION_KEY environment overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COOP_STATE_FILE"); v != "" {
		cfg.Door.StateFile = v
	}
	if v := os.Getenv("COOP_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("COOP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("COOP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("COOP_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("COOP_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("COOP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("COOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.Latitude < -66 || c.Site.Latitude > 66 {
		// polar day/night has no sunrise formula solution
		errs = append(errs, "site.latitude must be between -66 and 66")
	}
	if _, err := c.Site.Location(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Door.MoveUpTime <= 0 || c.Door.MoveDownTime <= 0 {
		errs = append(errs, "door.move_up_time and door.move_down_time must be positive")
	}
	if c.Door.ContactSamples < 1 {
		errs = append(errs, "door.contact_samples must be at least 1")
	}
	if c.Door.ContactThreshold < 1 || c.Door.ContactThreshold > c.Door.ContactSamples {
		errs = append(errs, "door.contact_threshold must be between 1 and door.contact_samples")
	}
	if c.Door.StateFile == "" {
		errs = append(errs, "door.state_file is required")
	}

	if c.Schedule.DoorCheckInterval <= 0 {
		errs = append(errs, "schedule.door_check_interval must be positive")
	}
	if c.Schedule.SunriseInterval <= 0 {
		errs = append(errs, "schedule.sunrise_interval must be positive")
	}
	if c.Schedule.LightOnBeforeClosing < 0 || c.Schedule.LightOffAfterClosing < 0 {
		errs = append(errs, "schedule light offsets must not be negative")
	}
	if _, err := c.Schedule.EarliestOpenTimes(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Button.Enabled && c.Button.ShutdownAfter <= c.Button.RebootAfter {
		errs = append(errs, "button.shutdown_after must be greater than button.reboot_after")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if c.HTTP.WaitTimeout <= 0 || c.HTTP.MaxWaitTimeout < c.HTTP.WaitTimeout {
		errs = append(errs, "http.wait_timeout must be positive and not exceed http.max_wait_timeout")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// EarliestOpenTimes converts the earliest_open map into offsets from
// midnight indexed by time.Weekday. Missing days default to 05:30.
func (s ScheduleConfig) EarliestOpenTimes() ([7]time.Duration, error) {
	var out [7]time.Duration
	for i := range out {
		out[i] = 5*time.Hour + 30*time.Minute
	}
	for name, clock := range s.EarliestOpen {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return out, fmt.Errorf("schedule.earliest_open: unknown weekday %q", name)
		}
		d, err := parseClock(clock)
		if err != nil {
			return out, fmt.Errorf("schedule.earliest_open.%s: %w", name, err)
		}
		out[day] = d
	}
	return out, nil
}

// parseClock parses "HH:MM" into a duration since midnight.
func parseClock(s string) (time.Duration, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}
