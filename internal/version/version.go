// Package version отдаёт сведения о сборке, проставленные через -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку бинаря.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get возвращает сведения о текущей сборке.
func Get() Build {
	return Build{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}
}

// Version возвращает только номер версии.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// UserAgent формирует значение для клиентских заголовков и kafka client id.
func UserAgent(service string) string {
	return fmt.Sprintf("%s/%s", service, version)
}
