package models

import "github.com/aidenhsy/cron-schedules/config"

// MigrateDatabase migrates only the tables this service owns. The order,
// procurement and basic schemas belong to upstream systems and are never
// touched by AutoMigrate.
func MigrateDatabase() error {
	if wacDB := config.GetWacDB(); wacDB != nil {
		if err := wacDB.AutoMigrate(&WacLedgerEntry{}); err != nil {
			return err
		}
	}
	if invDB := config.GetInventoryDB(); invDB != nil {
		if err := invDB.AutoMigrate(&SupplierItem{}); err != nil {
			return err
		}
	}
	return nil
}
