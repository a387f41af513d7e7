package main

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/logging"
)

// sizeWorkers подбирает число воркеров по ядрам машины, если в конфиге 0.
// Одно ядро оставляется основному циклу.
func sizeWorkers(cfg *config.Config) {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = max(1, cores-1)
	}
	if cfg.Loader.Workers == 0 {
		cfg.Loader.Workers = max(1, cores/4)
	}
	logging.Info("🧮 Ядер: %d, воркеров мешей: %d, загрузчиков: %d", cores, cfg.Scheduler.Workers, cfg.Loader.Workers)
}

// reportHost пишет в лог память машины и процесса
func reportHost() {
	if vm, err := mem.VirtualMemory(); err == nil {
		logging.Info("💻 Память: %.1f/%.1f ГБ занято (%.0f%%)",
			float64(vm.Used)/(1<<30), float64(vm.Total)/(1<<30), vm.UsedPercent)
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	if info, err := proc.MemoryInfo(); err == nil {
		logging.Info("📦 Процесс: RSS %.1f МБ", float64(info.RSS)/(1<<20))
	}
	if pct, err := proc.CPUPercent(); err == nil {
		logging.Debug("CPU процесса: %.1f%%", pct)
	}
}

// formatUptime форматирует время работы сервера
func formatUptime(start time.Time) string {
	return time.Since(start).Truncate(time.Second).String()
}
