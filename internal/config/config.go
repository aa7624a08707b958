package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds installation paths and execution tunables. Every value can be
// overridden through a RATCHET_* environment variable.
type Config struct {
	DataDir         string
	DBPath          string
	ArtifactsDir    string
	UserCommandDir  string
	UserStepDir     string
	UserTemplateDir string

	CommandTimeout time.Duration // bounds a whole invocation
	StepTimeout    time.Duration // bounds each individual step
	CleanupTimeout time.Duration // bounds each cleanup_on_failure step
	StaleThreshold time.Duration // running events older than this get reclassified

	PlumPath string
	PotsPath string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("RATCHET_DATA_DIR", filepath.Join(homeDir, ".ratchet"))

	c := &Config{
		DataDir:         dataDir,
		DBPath:          filepath.Join(dataDir, "ratchet.db"),
		ArtifactsDir:    getEnv("RATCHET_ARTIFACTS_DIR", filepath.Join(dataDir, "artifacts")),
		UserCommandDir:  filepath.Join(dataDir, "commands"),
		UserStepDir:     filepath.Join(dataDir, "steps"),
		UserTemplateDir: filepath.Join(dataDir, "templates"),

		CommandTimeout: getDurationEnv("RATCHET_COMMAND_TIMEOUT", 1800*time.Second),
		StepTimeout:    getDurationEnv("RATCHET_STEP_TIMEOUT", 300*time.Second),
		CleanupTimeout: getDurationEnv("RATCHET_CLEANUP_TIMEOUT", 60*time.Second),
		StaleThreshold: getDurationEnv("RATCHET_STALE_THRESHOLD", 24*time.Hour),

		PlumPath: os.Getenv("RATCHET_PLUM_PATH"),
		PotsPath: os.Getenv("RATCHET_POTS_PATH"),
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.ArtifactsDir, c.UserCommandDir, c.UserStepDir, c.UserTemplateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// CommandDirs returns the command definition search path, project first.
func (c *Config) CommandDirs(projectPath string) []string {
	return []string{filepath.Join(projectPath, ".ratchet", "commands"), c.UserCommandDir}
}

// StepDirs returns the external step search path, project first.
func (c *Config) StepDirs(projectPath string) []string {
	return []string{filepath.Join(projectPath, ".ratchet", "steps"), c.UserStepDir}
}

// TemplateDirs returns the prompt template search path, project first.
func (c *Config) TemplateDirs(projectPath string) []string {
	return []string{filepath.Join(projectPath, ".ratchet", "templates"), c.UserTemplateDir}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
