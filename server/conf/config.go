package conf

import (
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/kuzufcm/storage-bench/logger"
)

// CommandLineArgs carries the subset of CLI flags that influence config
// loading, mirroring the teacher's own CommandLineArgs shape.
type CommandLineArgs struct {
	ConfigPath string
}

// Cfg is the process-wide configuration for a storage-bench run: where
// the database home directory lives, how big a page is, how verbosely
// to log, and the driver's default selection strategy. It is loaded
// from an INI file the same way the teacher's Cfg is, with struct-tag
// defaults for everything a my.ini might omit.
type Cfg struct {
	Raw *ini.File

	DataDir  string `default:"data" ini:"data_dir"`
	PageSize int    `default:"4096" ini:"page_size"`

	LogLevel string `default:"info" ini:"log_level"`
	LogPath  string `default:"" ini:"log_path"`

	EnableFreeChunkMap bool `default:"true" ini:"enable_free_chunk_map"`

	DriverStrategy string `default:"auto" ini:"strategy"`
	DriverSeed     int64  `default:"42" ini:"seed"`
}

// NewCfg returns a Cfg populated with defaults, the same contract the
// teacher's NewCfg gives callers before Load overlays a config file.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                ini.Empty(),
		DataDir:            "data",
		PageSize:           4096,
		LogLevel:           "info",
		EnableFreeChunkMap: true,
		DriverStrategy:     "auto",
		DriverSeed:         42,
	}
}

// Load reads args.ConfigPath (or "conf/bench.ini" if unset) and overlays
// its [storage] and [driver] sections onto the defaults. A missing or
// unparsable file is not fatal: storage-bench falls back to defaults, the
// same leniency the teacher's loadConfiguration gives a missing my.ini.
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	iniFile, err := loadConfiguration(args)
	if err != nil {
		logger.Warnf("conf: failed to load config file, using defaults: %v", err)
		iniFile = ini.Empty()
	}
	cfg.Raw = iniFile

	cfg.parseStorageCfg(cfg.Raw.Section("storage"))
	cfg.parseDriverCfg(cfg.Raw.Section("driver"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg
}

func loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/bench.ini"
	if args != nil && args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("conf: no config file at %s, using defaults", configFile)
		return ini.Empty(), nil
	}

	parsed, err := ini.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger.Debugf("conf: loaded config file %s", configFile)
	return parsed, nil
}

func (cfg *Cfg) parseStorageCfg(section *ini.Section) {
	if section == nil {
		return
	}
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.PageSize = section.Key("page_size").MustInt(cfg.PageSize)
	cfg.EnableFreeChunkMap = section.Key("enable_free_chunk_map").MustBool(cfg.EnableFreeChunkMap)
}

func (cfg *Cfg) parseDriverCfg(section *ini.Section) {
	if section == nil {
		return
	}
	cfg.DriverStrategy = section.Key("strategy").MustString(cfg.DriverStrategy)
	cfg.DriverSeed = section.Key("seed").MustInt64(cfg.DriverSeed)
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	if section == nil {
		return
	}
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	cfg.LogPath = section.Key("log_path").MustString(cfg.LogPath)
}

// AbsDataDir resolves DataDir against the current working directory,
// matching the teacher's setHomePath behavior for relative paths.
func (cfg *Cfg) AbsDataDir() (string, error) {
	return filepath.Abs(cfg.DataDir)
}
