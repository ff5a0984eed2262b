package app

import (
	"database/sql"

	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/events"
	"github.com/mbolis/quick-forms/registry"
	"github.com/mbolis/quick-forms/sequence"
)

type App struct {
	*sql.DB
	config.Config
	Bus      *events.Bus
	Sequence *sequence.Allocator
	Registry *registry.Registry
}

func New(db *sql.DB, cfg config.Config) App {
	bus := events.NewBus()
	return App{
		DB:       db,
		Config:   cfg,
		Bus:      bus,
		Sequence: sequence.NewAllocator(db),
		Registry: registry.New(db, bus),
	}
}
