package settings

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/elkjaer/qcore/internal/qlog"
)

// Storage is the ExternalStorageHandle interface (spec.md §3, §6): a
// key/value source consulted at init for overrides, with a change callback
// that triggers a settings reload plus registration-update notification.
type Storage interface {
	ReadUint32(key string) (value uint32, ok bool)
	Close() error
}

// ViperStorage backs Storage with spf13/viper, watching a config file (if
// any) and environment variables under the QCORE_ prefix. This is the
// concrete ExternalStorageHandle used by LifecycleController's init
// sequence (spec.md §4.1 step 3, §6: "storage handle is opened with a
// change-callback").
type ViperStorage struct {
	v *viper.Viper
}

// OpenViperStorage opens storage rooted at configPath (may be empty, in
// which case only environment overrides apply) and invokes onChange
// whenever the backing file changes. Per spec.md §4.1/§7, failure to open
// is non-fatal: the caller should treat a non-nil error as "fall back to
// defaults", not abort library init.
func OpenViperStorage(configPath string, onChange func()) (*ViperStorage, error) {
	v := viper.New()
	v.SetEnvPrefix("QCORE")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			qlog.Default().Warn("settings storage open failed, using defaults", "path", configPath, "error", err)
			return &ViperStorage{v: v}, err
		}
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			qlog.Default().Info("settings storage changed", "op", e.Op.String())
			if onChange != nil {
				onChange()
			}
		})
	}

	return &ViperStorage{v: v}, nil
}

func (s *ViperStorage) ReadUint32(key string) (uint32, bool) {
	if s.v == nil || !s.v.IsSet(key) {
		return 0, false
	}
	return uint32(s.v.GetUint32(key)), true
}

func (s *ViperStorage) Close() error { return nil }

var _ Storage = (*ViperStorage)(nil)
