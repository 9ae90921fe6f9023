package cfg

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creativeprojects/imapview/mailbox"
	"gopkg.in/yaml.v3"
)

type StoreType string

const (
	// MEMORY keeps the whole repository in memory, gone on exit.
	MEMORY StoreType = "memory"
	// LOCAL persists the repository in a local database file.
	LOCAL StoreType = "local"
)

type Config struct {
	Store              Store         `yaml:"store"`
	HomePath           string        `yaml:"homePath"`
	CacheSize          int           `yaml:"cacheSize"`
	DeleteDelay        time.Duration `yaml:"deleteDelay"`
	TxnRetries         int           `yaml:"txnRetries"`
	ExcludedComponents []string      `yaml:"excludedComponents"`
	AppendRateLimit    float64       `yaml:"appendRateLimit"`
	AppendBurst        int           `yaml:"appendBurst"`
	Extraction         bool          `yaml:"attachmentExtraction"`
	MountPoints        []MountPoint  `yaml:"mountPoints"`
}

type Store struct {
	Type StoreType `yaml:"type"`
	File string    `yaml:"file"`
}

type MountPoint struct {
	Name string           `yaml:"name"`
	Path string           `yaml:"path"`
	Mode mailbox.ViewMode `yaml:"mode"`
	ID   int              `yaml:"id"`
}

func newConfig() *Config {
	return &Config{
		Store: Store{Type: MEMORY},
	}
}

// LoadFromFile loads the configuration from the file
func LoadFromFile(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	return loadConfig(file)
}

// loadConfig from a io.ReadCloser
func loadConfig(reader io.ReadCloser) (*Config, error) {
	defer reader.Close()
	decoder := yaml.NewDecoder(reader)
	config := newConfig()
	err := decoder.Decode(config)
	if err != nil {
		return nil, err
	}
	if err = validateConfiguration(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfiguration(config *Config) error {
	switch config.Store.Type {
	case MEMORY:
	case LOCAL:
		if config.Store.File == "" {
			return fmt.Errorf("store type %q needs a file", config.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type %q", config.Store.Type)
	}
	names := make(map[string]bool, len(config.MountPoints))
	ids := make(map[int]string, len(config.MountPoints))
	for index, mount := range config.MountPoints {
		if mount.Name == "" || mount.Path == "" {
			return fmt.Errorf("mount point %d: name and path are mandatory", index)
		}
		if names[mount.Name] {
			return fmt.Errorf("mount point %q is defined twice", mount.Name)
		}
		names[mount.Name] = true
		if !mount.Mode.Valid() {
			return fmt.Errorf("mount point %q: invalid view mode %q", mount.Name, mount.Mode)
		}
		// ids keep UIDVALIDITY apart between mounts of the same folder,
		// two mounts sharing one would collide
		if mount.ID != 0 {
			if other, taken := ids[mount.ID]; taken {
				return fmt.Errorf("mount points %q and %q share id %d", other, mount.Name, mount.ID)
			}
			ids[mount.ID] = mount.Name
		}
	}
	return nil
}
