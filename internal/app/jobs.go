package app

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/talkincode/resilienced/internal/metrics"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	if every := a.appConfig.RecheckEvery(); every > 0 {
		_, err = a.sched.AddFunc("@every "+every.String(), a.SchedRecheckTask)
		if err != nil {
			zap.S().Errorf("init job error %s", err.Error())
		}
	} else {
		zap.L().Info("periodic recheck disabled", zap.String("namespace", "recheck"))
	}

	a.sched.Start()
}

// SchedRecheckTask periodic re-evaluation of all specifications
func (a *Application) SchedRecheckTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := a.RecheckAll(ctx)
	if err != nil {
		zap.L().Error("periodic recheck failed", zap.String("namespace", "recheck"), zap.Error(err))
		return
	}
	zap.L().Info("periodic recheck done",
		zap.String("namespace", "recheck"),
		zap.Int("total", report.Total),
		zap.Int("violating", report.Violating),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed))
}

// SchedSystemMonitorTask host cpu and memory usage
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var cpuuse float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuuse = percents[0]
	}
	meminfo, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	metrics.SetResourceUsage(metrics.ScopeSystem, cpuuse, meminfo.Used/1024/1024)
}

// SchedProcessMonitorTask resilienced process cpu and memory usage
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec
	if err != nil {
		return
	}
	cpuuse, _ := p.CPUPercent()
	meminfo, err := p.MemoryInfo()
	if err != nil {
		return
	}
	metrics.SetResourceUsage(metrics.ScopeProcess, cpuuse, meminfo.RSS/1024/1024)
}
