package procdesc

import (
	"sort"

	"github.com/core-tools/hsu-procdesc-go/pkg/bytesize"
)

// Summary provides a high-level overview of an ecosystem for operators.
// Environment values are withheld since they usually carry credentials.
type Summary struct {
	TotalProcesses int              `json:"total_processes"`
	TotalInstances int              `json:"total_instances"`
	Processes      []ProcessSummary `json:"processes"`
	Error          string           `json:"error,omitempty"`
}

type ProcessSummary struct {
	Name                   string        `json:"name"`
	ExecutablePath         string        `json:"script"`
	Instances              int           `json:"instances"`
	AutoRestart            bool          `json:"autorestart"`
	Watch                  bool          `json:"watch"`
	MemoryRestartThreshold bytesize.Size `json:"max_memory_restart,omitempty"`
	MemoryRestartHuman     string        `json:"max_memory_restart_human,omitempty"`
	Port                   int           `json:"port,omitempty"`
	EnvironmentNames       []string      `json:"env_names,omitempty"`
	Overrides              []string      `json:"env_overrides,omitempty"`
	LogPaths               LogPaths      `json:"logs"`
}

func Summarize(ecosystem *Ecosystem) Summary {
	if ecosystem == nil {
		return Summary{Error: "ecosystem is nil"}
	}

	summary := Summary{
		Processes: make([]ProcessSummary, 0, len(ecosystem.Apps)),
	}

	for _, app := range ecosystem.Apps {
		processSummary := ProcessSummary{
			Name:             app.Name,
			ExecutablePath:   app.ExecutablePath,
			Instances:        app.InstanceCount,
			AutoRestart:      app.AutoRestart,
			Watch:            app.WatchFilesystem,
			EnvironmentNames: app.Environment.Names(),
			LogPaths:         app.LogPaths,
		}

		if app.MemoryRestartThreshold > 0 {
			processSummary.MemoryRestartThreshold = app.MemoryRestartThreshold
			processSummary.MemoryRestartHuman = app.MemoryRestartThreshold.Human()
		}
		if port, ok := app.Port(); ok {
			processSummary.Port = port
		}
		for name := range app.Environments {
			processSummary.Overrides = append(processSummary.Overrides, name)
		}
		sort.Strings(processSummary.Overrides)

		summary.Processes = append(summary.Processes, processSummary)
		summary.TotalInstances += app.InstanceCount
	}

	summary.TotalProcesses = len(summary.Processes)
	return summary
}
