package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"SalesInsight/src/config"
	"SalesInsight/src/datasource/email"
	"SalesInsight/src/datasource/file"
	"SalesInsight/src/pipeline"
	"SalesInsight/src/storage"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName, cfg.LogMaxSize, os.Stdout)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	p := pipeline.New(cfg, dcfg, logger, os.Stdout)

	if !cfg.Watch && cfg.Schedule == "" && !cfg.Email.Enabled {
		if err := analyze(p, cfg.Input.Path); err != nil {
			logger.Fatal(err.Error())
			logger.Close()
			os.Exit(1)
		}
		logger.Close()
		return
	}

	// 常驻模式: 先跑一次, 再按配置调度
	if err := analyze(p, cfg.Input.Path); err != nil {
		logger.Error(err.Error())
	}

	c := cron.New()
	if cfg.Schedule != "" {
		err := c.AddFunc(cfg.Schedule, func() {
			if err := analyze(p, cfg.Input.Path); err != nil {
				logger.Error(err.Error())
			}
		})
		if err != nil {
			logger.Fatal("创建定时任务失败: " + err.Error())
			logger.Close()
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("定时分析已启动(%s)", cfg.Schedule))
	}

	if cfg.Email.Enabled {
		emailClient := email.NewEmailClient(
			cfg.Email.Server,
			cfg.Email.Username,
			cfg.Email.Password)
		emailClient.Subject = cfg.Email.TargetSubject
		handler := email.NewXLSXAttachmentHandler(cfg.Email.TargetSubject, cfg.DataDir)

		spec := cronSpec(cfg.Email.CheckInterval)
		if err := c.AddFunc(spec, emailJob(p, emailClient, handler)); err != nil {
			logger.Fatal("创建邮件检查任务失败: " + err.Error())
			logger.Close()
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("邮件监控服务已启动(%s)", spec))
	}

	c.Start()
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Watch {
		monitor, err := file.NewFileMonitor(cfg.Input.Path)
		if err != nil {
			logger.Fatal("监听输入文件失败: " + err.Error())
			logger.Close()
			os.Exit(1)
		}
		go func() {
			err := monitor.Watch(ctx, func(path string) {
				logger.Info("输入文件已更新: " + path)
				if err := analyze(p, path); err != nil {
					logger.Error(err.Error())
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("文件监听错误: " + err.Error())
			}
		}()
		logger.Info("正在监听 " + cfg.Input.Path + ", 按Ctrl+C退出")
	}

	waitForShutdown(logger)
}

// analyze 运行一次完整分析并记录摘要
func analyze(p *pipeline.Pipeline, path string) error {
	t1 := time.Now()
	res, err := p.Run(path)
	if err != nil {
		return fmt.Errorf("分析 %s 失败: %w", path, err)
	}
	logSummary(p, res, time.Since(t1))
	return nil
}

func logSummary(p *pipeline.Pipeline, res *pipeline.Result, took time.Duration) {
	p.Logger.Info(fmt.Sprintf("分析完成: %d -> %d 行, %d 张图表, 用时 %v",
		res.RowsLoaded, res.RowsCleaned, len(res.Charts), took))
}

// cronSpec 把检查间隔转成 @every 表达式, 未配置时为5分钟
func cronSpec(interval config.Duration) string {
	d := time.Duration(interval)
	if d <= 0 {
		d = 5 * time.Minute
	}
	return fmt.Sprintf("@every %s", d)
}

// emailJob 检查邮箱, 存档新的工作簿附件后直接分析附件内容
func emailJob(p *pipeline.Pipeline, svc email.MailService, handler *email.XLSXAttachmentHandler) func() {
	return func() {
		newEmail, err := email.LatestWorkbookMail(svc, handler.TargetSubject, p.Logger)
		if err != nil {
			p.Logger.Error("检查邮件失败: " + err.Error())
			return
		}
		if newEmail == nil {
			return
		}

		path, err := handler.Handle(newEmail)
		if err != nil {
			p.Logger.Error(fmt.Sprintf("存档附件失败(UID:%d): %v", newEmail.UID, err))
			return
		}
		if path == "" {
			return
		}
		p.Logger.Info("已存档附件: " + path)

		wb := newEmail.Workbook()
		t1 := time.Now()
		res, err := p.RunWorkbook(wb.Filename, wb.Content)
		if err != nil {
			p.Logger.Error(fmt.Sprintf("分析附件 %s 失败: %v", wb.Filename, err))
			return
		}
		logSummary(p, res, time.Since(t1))
	}
}

// waitForShutdown 阻塞到收到退出信号; SIGHUP 重新打开日志文件
func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(); err != nil {
				log.Println("Failed to reopen log:", err)
			}
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		logger.Close()
		return
	}
}
