package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigs(t *testing.T) {
	cfg, dcfg, err := loadConfigs("../../config", "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "Walmart_sales_analysis", cfg.Input.SheetName)
	assert.Equal(t, "cleaned_walmart_sales.csv", cfg.Output.CSVPath)
	assert.Equal(t, Duration(5*time.Minute), cfg.Email.CheckInterval)
	assert.Equal(t, "weekly_sales", dcfg.SalesColumn)
	assert.Len(t, dcfg.WeekdayOrder, 7)
}

func TestLoadConfigsMissingFiles(t *testing.T) {
	cfg, dcfg, err := loadConfigs(t.TempDir(), "config.json", "dataconfig.json")
	require.NoError(t, err)
	wantCfg, wantDcfg := Default()
	assert.Equal(t, wantCfg, cfg)
	assert.Equal(t, wantDcfg, dcfg)
}

func TestLoadConfigsKeepsPresentFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"input":{"path":"sales.xlsx"},"watch":true}`), 0644))

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, "sales.xlsx", cfg.Input.Path)
	assert.True(t, cfg.Watch)
	assert.Equal(t, DefaultDataConfig(), dcfg)

	// 反过来: 只有数据配置
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"),
		[]byte(`{"sales_column":"sales"}`), 0644))
	cfg, dcfg, err = loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Equal(t, "sales", dcfg.SalesColumn)
	assert.Equal(t, "Walmart_sales_analysis", cfg.Input.SheetName)
}

func TestParseKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{"input":{"path":"sales.xlsx"}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"sales_column":"sales"}`), 0644))

	cfg, dcfg, err := loadConfigs(dir, "c.json", "d.json")
	require.NoError(t, err)
	assert.Equal(t, "sales.xlsx", cfg.Input.Path)
	assert.Equal(t, "Walmart_sales_analysis", cfg.Input.SheetName)
	assert.Equal(t, "sales", dcfg.SalesColumn)
	assert.Equal(t, "date", dcfg.DateColumn)
}

func TestParseRejectsBadLabels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.json"), []byte(`{"sales_labels":["a","b"]}`), 0644))

	_, _, err := loadConfigs(dir, "c.json", "d.json")
	assert.Error(t, err)
}

func TestStoreColumn(t *testing.T) {
	dcfg := DefaultDataConfig()

	col, ok := dcfg.StoreColumn([]string{"date", "store"})
	assert.True(t, ok)
	assert.Equal(t, "store", col)

	col, ok = dcfg.StoreColumn([]string{"store", "store_number"})
	assert.True(t, ok)
	assert.Equal(t, "store_number", col)

	_, ok = dcfg.StoreColumn([]string{"date"})
	assert.False(t, ok)
}

func TestValidateStruct(t *testing.T) {
	cfg, dcfg := Default()
	require.NoError(t, validateStruct(cfg))
	require.NoError(t, validateStruct(dcfg))

	cfg.Output.CSVPath = ""
	cfg.SendEmail.Enabled = true
	cfg.SendEmail.To = []string{"not-an-address"}
	err := validateStruct(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv_path")
	assert.Contains(t, err.Error(), "send_email.server")
	assert.Contains(t, err.Error(), "email")

	dcfg.WeekdayOrder = dcfg.WeekdayOrder[:5]
	err = validateStruct(dcfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekday_order")
}
