package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Schema != "dbo" {
		t.Errorf("Schema default = %q, want %q", cfg.Schema, "dbo")
	}
	if cfg.RootResourceID != "root" {
		t.Errorf("RootResourceID default = %q, want %q", cfg.RootResourceID, "root")
	}
	if !cfg.SeedCoreData {
		t.Error("SeedCoreData default should be true")
	}
	if cfg.InitializeFunctions {
		t.Error("InitializeFunctions default should be false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SQLZIBAR_SCHEMA", "custom")
	t.Setenv("SQLZIBAR_ROOT_RESOURCE_ID", "root-1")
	t.Setenv("SQLZIBAR_INITIALIZE_FUNCTIONS", "true")
	t.Setenv("SQLZIBAR_SEED_CORE_DATA", "false")

	cfg := Load()

	if cfg.Schema != "custom" {
		t.Errorf("Schema = %q, want %q", cfg.Schema, "custom")
	}
	if cfg.RootResourceID != "root-1" {
		t.Errorf("RootResourceID = %q, want %q", cfg.RootResourceID, "root-1")
	}
	if !cfg.InitializeFunctions {
		t.Error("InitializeFunctions should be true")
	}
	if cfg.SeedCoreData {
		t.Error("SeedCoreData should be false")
	}
}

func TestLoad_TableNameOverrides(t *testing.T) {
	t.Setenv("SQLZIBAR_TABLE_NAME_OVERRIDES", "principals=sz_principals,grants=sz_grants")

	cfg := Load()

	if cfg.TableNames["principals"] != "sz_principals" {
		t.Errorf("TableNames[principals] = %q, want %q", cfg.TableNames["principals"], "sz_principals")
	}
	if cfg.TableNames["grants"] != "sz_grants" {
		t.Errorf("TableNames[grants] = %q, want %q", cfg.TableNames["grants"], "sz_grants")
	}
}

func TestLoad_TableNameOverrides_Empty(t *testing.T) {
	cfg := Load()
	if len(cfg.TableNames) != 0 {
		t.Errorf("expected no table name overrides by default, got %v", cfg.TableNames)
	}
}
