package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/fiadopay/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// BuildInfoCollector публикует fiadopay_build_info со значением 1 и метками сборки.
func BuildInfoCollector() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fiadopay_build_info",
		Help: "Build information of the running FiadoPay binary.",
		ConstLabels: prometheus.Labels{
			"version": version,
			"commit":  commit,
			"date":    date,
		},
	}, func() float64 { return 1 })
}
