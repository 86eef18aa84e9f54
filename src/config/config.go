package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Input struct {
		Path      string `json:"path" validate:"required"`       // 销售数据工作簿路径
		SheetName string `json:"sheet_name" validate:"required"` // 工作表名称
		HeaderRow int    `json:"header_row" validate:"min=0"`    // 标题行下标(从0开始)
	} `json:"input"`

	Output struct {
		CSVPath  string `json:"csv_path" validate:"required"`  // 清洗后数据导出路径
		XLSXPath string `json:"xlsx_path"`                     // 可选: 同时导出xlsx
		ChartDir string `json:"chart_dir" validate:"required"` // 图表输出目录
	} `json:"output"`

	DataDir    string `json:"data_dir"` // 邮件附件保存目录
	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`

	Watch    bool   `json:"watch"`    // 监听输入文件变化并重新分析
	Schedule string `json:"schedule"` // cron表达式, 例如 "@every 24h"

	Email struct {
		Enabled       bool     `json:"enabled"`
		Server        string   `json:"server" validate:"required_if=Enabled true"`         // 邮件服务器地址
		Username      string   `json:"username"`                                           // 邮箱用户名
		Password      string   `json:"password"`                                           // 邮箱密码
		TargetSubject string   `json:"target_subject" validate:"required_if=Enabled true"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"`                                     // 检查新邮件的间隔时间
	} `json:"email"`

	SendEmail struct {
		Enabled  bool     `json:"enabled"`
		Server   string   `json:"server" validate:"required_if=Enabled true"`
		Username string   `json:"username"`
		Password string   `json:"password"`
		To       []string `json:"to" validate:"required_if=Enabled true,dive,email"`
		Subject  string   `json:"subject"`
	} `json:"send_email"`
}

// DataConfig 描述数据表的列映射
type DataConfig struct {
	DateColumn         string   `json:"date_column" validate:"required"`
	SalesColumn        string   `json:"sales_column" validate:"required"`
	HolidayColumn      string   `json:"holiday_column" validate:"required"`
	TemperatureColumn  string   `json:"temperature_column" validate:"required"`
	UnemploymentColumn string   `json:"unemployment_column" validate:"required"`
	StoreColumns       []string `json:"store_columns" validate:"min=1"` // 按顺序取第一个存在的列
	SalesLabels        []string `json:"sales_labels" validate:"len=4,dive,required"`
	WeekdayOrder       []string `json:"weekday_order" validate:"len=7"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
)

// Default 返回与原始分析脚本一致的默认配置
func Default() (*Config, *DataConfig) {
	cfg := &Config{}
	cfg.Input.Path = `C:\Users\USER\OneDrive\Documents\Downloads\Walmart_sales_data.xlsx`
	cfg.Input.SheetName = "Walmart_sales_analysis"
	cfg.Output.CSVPath = "cleaned_walmart_sales.csv"
	cfg.Output.ChartDir = "charts"
	cfg.DataDir = "data"
	cfg.LogName = "app.log"
	cfg.LogMaxSize = "10 * 1024 * 1024"
	cfg.Email.CheckInterval = Duration(5 * time.Minute)
	cfg.SendEmail.Subject = "Walmart sales EDA"

	return cfg, DefaultDataConfig()
}

func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		DateColumn:         "date",
		SalesColumn:        "weekly_sales",
		HolidayColumn:      "holiday_flag",
		TemperatureColumn:  "temperature",
		UnemploymentColumn: "unemployment",
		StoreColumns:       []string{"store_number", "store"},
		SalesLabels:        []string{"Low", "Medium", "High", "Very High"},
		WeekdayOrder:       []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
	}
}

// LoadConfig 只加载一次配置; 缺少的配置文件各自使用默认值
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readOptional(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readOptional(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	return waitForResults(cfgChan, dcfgChan, errChan)
}

// readOptional 读取文件; 文件不存在时返回nil且不报错
func readOptional(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

// parseConfig 在默认值之上解析, 缺省字段保留默认配置; data为nil时即默认配置
func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	cfg, _ := Default()
	if data != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			errChan <- fmt.Errorf("解析Config失败: %w", err)
			return
		}
	}
	if err := validateStruct(cfg); err != nil {
		errChan <- fmt.Errorf("Config校验失败: %w", err)
		return
	}
	resultChan <- cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if data != nil {
		if err := json.Unmarshal(data, dcfg); err != nil {
			errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
			return
		}
	}
	if err := validateStruct(dcfg); err != nil {
		errChan <- fmt.Errorf("DataConfig校验失败: %w", err)
		return
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// StoreColumn 返回names中第一个匹配的门店列
func (dc *DataConfig) StoreColumn(names []string) (string, bool) {
	for _, candidate := range dc.StoreColumns {
		for _, n := range names {
			if n == candidate {
				return n, true
			}
		}
	}
	return "", false
}
