package cmd

import (
	"fmt"

	"github.com/creativeprojects/imapview/cfg"
	"github.com/creativeprojects/imapview/folder"
	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	"github.com/creativeprojects/imapview/repo/local"
	"github.com/creativeprojects/imapview/repo/mem"
	"github.com/creativeprojects/imapview/term"
)

func openStore(logger lib.Logger) (repo.Store, error) {
	switch config.Store.Type {
	case cfg.LOCAL:
		return local.NewBoltStoreWithLogger(config.Store.File, logger)
	case cfg.MEMORY:
		return mem.NewWithLogger(logger), nil
	}
	return nil, fmt.Errorf("unknown store type %q", config.Store.Type)
}

// withService opens the store and the folder service from the loaded
// configuration, runs fn, and tears both down again.
func withService(fn func(service *folder.Service) error) error {
	logger := term.Logger{}
	store, err := openStore(logger)
	if err != nil {
		return fmt.Errorf("cannot open store: %w", err)
	}
	defer store.Close()

	mounts := make([]folder.MountPoint, 0, len(config.MountPoints))
	for _, mount := range config.MountPoints {
		mounts = append(mounts, folder.MountPoint{
			Name: mount.Name,
			Path: mount.Path,
			Mode: mount.Mode,
			ID:   mount.ID,
		})
	}
	service, err := folder.NewService(store, folder.Options{
		MountPoints:        mounts,
		HomePath:           config.HomePath,
		CacheSize:          config.CacheSize,
		DeleteDelay:        config.DeleteDelay,
		TxnRetries:         config.TxnRetries,
		ExcludedComponents: config.ExcludedComponents,
		AppendRateLimit:    config.AppendRateLimit,
		AppendBurst:        config.AppendBurst,
		ExtractionEnabled:  config.Extraction,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("cannot start folder service: %w", err)
	}
	defer service.Close()

	return fn(service)
}
