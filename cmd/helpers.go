package cmd

import (
	"context"

	"eavsctl/internal/config"
	"eavsctl/internal/mapping"
	"eavsctl/internal/warehouse"
)

// loadEnvironment reads the operator config and the mapping document; the
// --mappings flag overrides the configured path.
func loadEnvironment(mappingOverride string) (*config.Config, *mapping.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	path := cfg.MappingFile
	if mappingOverride != "" {
		path = mappingOverride
	}
	store, err := mapping.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// connectWarehouse validates connection settings and opens the warehouse
// connection.
func connectWarehouse(ctx context.Context, cfg *config.Config) (*warehouse.Service, error) {
	if err := cfg.ValidateForWarehouse(); err != nil {
		return nil, err
	}

	svc := warehouse.NewService(warehouse.Config{
		Account:   cfg.Account,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
		Timeout:   cfg.Timeout,
	})
	if err := svc.Connect(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
