package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/sirupsen/logrus"
)

func TestLoadTemplates(t *testing.T) {
	valid := template.Template{
		ID:              "tyres",
		Name:            "Tyre Rotation",
		DefaultPriority: models.PriorityLow,
		VehicleTypes:    []string{"trailer"},
		Tasks:           []template.TaskTemplate{{ID: "rotate", Title: "Rotate Tyres", Category: "Tyres", EstimatedHours: 1}},
	}

	registry, err := loadTemplates([]template.Template{valid})
	if err != nil {
		t.Fatalf("loadTemplates() err = %v", err)
	}
	if _, err := registry.Get("tyres"); err != nil {
		t.Fatalf("Get() err = %v", err)
	}

	if _, err := loadTemplates([]template.Template{valid, valid}); err == nil {
		t.Fatal("loadTemplates() with duplicate ids err = nil")
	}
}

func TestSetupLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "jobcards.log")

	log, err := setupLogger(envDev, path)
	if err != nil {
		t.Fatalf("setupLogger() err = %v", err)
	}
	if log.Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", log.Logger.GetLevel())
	}
	log.Info("hello")
	log.Debug("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() err = %v", err)
	}
	if !strings.Contains(string(data), "hello") || strings.Contains(string(data), "hidden") {
		t.Fatalf("log file = %q", data)
	}

	local, err := setupLogger(envLocal, path)
	if err != nil || local.Logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("local logger = %v, %v", local, err)
	}
}

func TestTemplatesValidateCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
templates:
  - id: broken
    name: Broken
    defaultPriority: medium
    tasks:
      - id: a
        title: A
        category: General
        estimatedHours: 1
        dependsOn: [missing]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"templates", "validate", "--config", cfgPath})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Execute() err = nil, want invalid template error")
	}
	if !strings.Contains(out.String(), "invalid  broken") {
		t.Fatalf("output = %q", out.String())
	}
}
