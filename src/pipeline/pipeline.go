package pipeline

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"

	"SalesInsight/src/config"
	"SalesInsight/src/datapush"
	"SalesInsight/src/datasource/file"
	"SalesInsight/src/processor"
	"SalesInsight/src/report"
	"SalesInsight/src/storage"
)

// Pipeline 加载 -> 诊断 -> 清洗 -> 派生特征 -> 图表 -> 导出
type Pipeline struct {
	Cfg    *config.Config
	Cols   *config.DataConfig
	Logger *storage.Logger
	Out    io.Writer // 诊断信息输出

	mu sync.Mutex // 一次只运行一个流程, 各次运行写同一组输出文件
}

// Result 一次运行的结果
type Result struct {
	Table       *processor.SalesTable
	RowsLoaded  int
	RowsCleaned int
	Coerced     int
	Charts      []string
	CSVPath     string
}

func New(cfg *config.Config, cols *config.DataConfig, logger *storage.Logger, out io.Writer) *Pipeline {
	return &Pipeline{Cfg: cfg, Cols: cols, Logger: logger, Out: out}
}

// Run 从工作簿文件运行完整流程
func (p *Pipeline) Run(path string) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t1 := time.Now()
	df, err := file.ReadXLSX(path, p.Cfg.Input.SheetName, p.Cfg.Input.HeaderRow)
	if err != nil {
		return nil, fmt.Errorf("加载数据失败: %w", err)
	}
	p.Logger.Infof("已加载 %s [%s]: %d 行 %d 列, 用时 %v",
		path, p.Cfg.Input.SheetName, df.Nrow(), df.Ncol(), time.Since(t1))

	return p.runFrame(df)
}

// RunWorkbook 对内存中的工作簿(例如邮件附件)运行完整流程
func (p *Pipeline) RunWorkbook(name string, data []byte) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	df, err := file.ReadXLSXBinary(data, p.Cfg.Input.SheetName, p.Cfg.Input.HeaderRow)
	if err != nil {
		return nil, fmt.Errorf("加载附件 %s 失败: %w", name, err)
	}
	p.Logger.Infof("已加载附件 %s [%s]: %d 行 %d 列", name, p.Cfg.Input.SheetName, df.Nrow(), df.Ncol())

	return p.runFrame(df)
}

// RunFrame 对已加载的DataFrame运行其余步骤
func (p *Pipeline) RunFrame(df dataframe.DataFrame) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runFrame(df)
}

func (p *Pipeline) runFrame(df dataframe.DataFrame) (*Result, error) {
	table := processor.NewSalesTable(df)
	res := &Result{Table: table, RowsLoaded: table.Nrow()}

	processor.Report(p.Out, table)

	if err := p.clean(table, res); err != nil {
		return res, err
	}

	reporter := report.NewReporter(p.Cfg.Output.ChartDir, p.Cols, p.Out)
	if err := p.render(reporter, table, res, report.BeforeFeatures()); err != nil {
		return res, err
	}

	if err := table.AddCalendarFeatures(p.Cols.DateColumn); err != nil {
		return res, fmt.Errorf("派生日期特征失败: %w", err)
	}
	if err := p.render(reporter, table, res, report.AfterCalendar()); err != nil {
		return res, err
	}

	if err := table.AddSalesCategory(p.Cols.SalesColumn, p.Cols.SalesLabels); err != nil {
		return res, fmt.Errorf("销售额分档失败: %w", err)
	}
	if err := p.render(reporter, table, res, report.AfterCategory()); err != nil {
		return res, err
	}

	if err := p.export(table, res); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) clean(table *processor.SalesTable, res *Result) error {
	coerced, err := table.ParseDates(p.Cols.DateColumn)
	if err != nil {
		return fmt.Errorf("解析日期失败: %w", err)
	}
	res.Coerced = coerced
	if coerced > 0 {
		p.Logger.Warning(fmt.Sprintf("%d 个日期无法解析, 已置为缺失", coerced))
	}

	if err := table.NormalizeColumns(); err != nil {
		return fmt.Errorf("规范化列名失败: %w", err)
	}

	fmt.Fprintln(p.Out, "\nMissing values before cleaning:")
	processor.PrintMissing(p.Out, processor.MissingCounts(table))
	filled, err := table.ForwardFill()
	if err != nil {
		return fmt.Errorf("前向填充失败: %w", err)
	}
	fmt.Fprintln(p.Out, "\nMissing values after forward fill:")
	processor.PrintMissing(p.Out, processor.MissingCounts(table))
	if left := processor.TotalMissing(table); left > 0 {
		p.Logger.Warning(fmt.Sprintf("前向填充后仍有 %d 个缺失值(首行缺失)", left))
	}

	dropped, err := table.DropDuplicates()
	if err != nil {
		return fmt.Errorf("删除重复行失败: %w", err)
	}

	res.RowsCleaned = table.Nrow()
	p.Logger.Infof("清洗完成: 填充 %d 个缺失值, 删除 %d 行重复, 剩余 %d 行", filled, dropped, res.RowsCleaned)
	return nil
}

func (p *Pipeline) render(r *report.Reporter, table *processor.SalesTable, res *Result, charts []report.Chart) error {
	paths, err := r.Render(table, charts)
	res.Charts = append(res.Charts, paths...)
	if err != nil {
		return err
	}
	p.Logger.Infof("已生成 %d 张图表", len(paths))
	return nil
}

func (p *Pipeline) export(table *processor.SalesTable, res *Result) error {
	out := p.Cfg.Output
	if err := datapush.WriteCSV(table, out.CSVPath); err != nil {
		return fmt.Errorf("导出CSV失败: %w", err)
	}
	res.CSVPath = out.CSVPath
	fmt.Fprintf(p.Out, "\nCleaned data exported as '%s'\n", out.CSVPath)

	attachments := []string{out.CSVPath}
	if out.XLSXPath != "" {
		if err := datapush.SaveToExcel(table, out.XLSXPath); err != nil {
			return fmt.Errorf("导出xlsx失败: %w", err)
		}
		attachments = append(attachments, out.XLSXPath)
		p.Logger.Infof("已导出 %s", out.XLSXPath)
	}

	if p.Cfg.SendEmail.Enabled {
		send := p.Cfg.SendEmail
		mailer := &datapush.Mailer{
			Server:   send.Server,
			Username: send.Username,
			Password: send.Password,
			To:       send.To,
			Subject:  send.Subject,
		}
		body := fmt.Sprintf("rows loaded: %d\nrows after cleaning: %d\ncharts: %d\n",
			res.RowsLoaded, res.RowsCleaned, len(res.Charts))
		if err := mailer.SendReport(body, attachments...); err != nil {
			return err
		}
		p.Logger.Info("报告邮件已发送")
	}
	return nil
}
