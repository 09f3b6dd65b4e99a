package directory

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("directory.module",
	fx.Provide(
		NewRepository,
		func(r *Repository) Directory { return r },
	),
)

// Migrate creates the directory tables. Used by local setups and the seed command.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
