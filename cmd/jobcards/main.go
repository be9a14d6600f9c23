// cmd/jobcards/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var rootCmd = &cobra.Command{
	Use:   "jobcards",
	Short: "Workshop job card task service",
	Long: `Jobcards tracks maintenance tasks on workshop job cards.

Technicians move tasks through their lifecycle, supervisors verify
completed work, and every change is kept in an audit history.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(env string, logFilePath string) (*logrus.Entry, error) {
	log := logrus.New()

	if env == envLocal {
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
		return logrus.NewEntry(log), nil
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(logFile)

	switch env {
	case envDev:
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
		log.SetLevel(logrus.InfoLevel)
	case envProd:
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
		log.SetLevel(logrus.WarnLevel)
	}

	return logrus.NewEntry(log), nil
}
