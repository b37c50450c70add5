package storage

import (
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
)

func NewStore(cfg *config.Config, logger internal.Logger) (Store, error) {
	if cfg.DBType == "postgres" {
		return NewPostgresStorage(cfg.DBDSN, logger)
	}
	return NewFileStorage(cfg.FileStates, cfg.FileRecords, cfg.FileEvents, logger)
}
