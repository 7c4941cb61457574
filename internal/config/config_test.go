package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "run.json")

	testJSON := `{
  "darks": "cal/darks",
  "mdarks": "cal/mdarks",
  "flats": "cal/flats",
  "mflats": "cal/mflats",
  "lights": "night1/lights",
  "out": "night1/out",
  "level": 1,
  "workers": 4,
  "missing-master": "skip",
  "nonfinite": "propagate",
  "db": "night1/runs.db",
  "report": "night1/report",
  "logfile": "night1/run.log",
  "verbose": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Darks == nil || *cfg.Darks != "cal/darks" {
		t.Errorf("Darks = %v, want cal/darks", cfg.Darks)
	}
	if cfg.MDarks == nil || *cfg.MDarks != "cal/mdarks" {
		t.Errorf("MDarks = %v, want cal/mdarks", cfg.MDarks)
	}
	if cfg.Flats == nil || *cfg.Flats != "cal/flats" {
		t.Errorf("Flats = %v, want cal/flats", cfg.Flats)
	}
	if cfg.MFlats == nil || *cfg.MFlats != "cal/mflats" {
		t.Errorf("MFlats = %v, want cal/mflats", cfg.MFlats)
	}
	if cfg.Lights == nil || *cfg.Lights != "night1/lights" {
		t.Errorf("Lights = %v, want night1/lights", cfg.Lights)
	}
	if cfg.Out == nil || *cfg.Out != "night1/out" {
		t.Errorf("Out = %v, want night1/out", cfg.Out)
	}
	if cfg.Level == nil || *cfg.Level != 1 {
		t.Errorf("Level = %v, want 1", cfg.Level)
	}
	if cfg.Workers == nil || *cfg.Workers != 4 {
		t.Errorf("Workers = %v, want 4", cfg.Workers)
	}
	if cfg.MissingMaster == nil || *cfg.MissingMaster != "skip" {
		t.Errorf("MissingMaster = %v, want skip", cfg.MissingMaster)
	}
	if cfg.NonFinite == nil || *cfg.NonFinite != "propagate" {
		t.Errorf("NonFinite = %v, want propagate", cfg.NonFinite)
	}
	if cfg.DB == nil || *cfg.DB != "night1/runs.db" {
		t.Errorf("DB = %v, want night1/runs.db", cfg.DB)
	}
	if cfg.Report == nil || *cfg.Report != "night1/report" {
		t.Errorf("Report = %v, want night1/report", cfg.Report)
	}
	if cfg.LogFile == nil || *cfg.LogFile != "night1/run.log" {
		t.Errorf("LogFile = %v, want night1/run.log", cfg.LogFile)
	}
	if cfg.Verbose == nil || *cfg.Verbose != true {
		t.Errorf("Verbose = %v, want true", cfg.Verbose)
	}
}

func TestLoadPartial(t *testing.T) {
	// Partial config: only two keys; everything else should stay nil.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "darks": "archive/darks",
  "level": 2
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.Darks == nil || *cfg.Darks != "archive/darks" {
		t.Errorf("Darks = %v, want archive/darks", cfg.Darks)
	}
	if cfg.Level == nil || *cfg.Level != 2 {
		t.Errorf("Level = %v, want 2", cfg.Level)
	}
	if cfg.Flats != nil {
		t.Errorf("Flats = %v, want nil", cfg.Flats)
	}
	if cfg.Workers != nil {
		t.Errorf("Workers = %v, want nil", cfg.Workers)
	}
	if cfg.Verbose != nil {
		t.Errorf("Verbose = %v, want nil", cfg.Verbose)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/path/to/run.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	invalidJSON := `{
  "darks": "cal/darks"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadRejectsNonJSON(t *testing.T) {
	_, err := Load("/some/path/run.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024)
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "badpolicy.json")

	badJSON := `{"missing-master": "ignore"}`
	if err := os.WriteFile(configPath, []byte(badJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for unknown policy, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ReduceConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &ReduceConfig{},
			wantErr: false,
		},
		{
			name: "valid policies",
			cfg: &ReduceConfig{
				MissingMaster: ptrString("skip"),
				NonFinite:     ptrString("propagate"),
			},
			wantErr: false,
		},
		{
			name:    "level too high",
			cfg:     &ReduceConfig{Level: ptrInt(3)},
			wantErr: true,
		},
		{
			name:    "negative level",
			cfg:     &ReduceConfig{Level: ptrInt(-1)},
			wantErr: true,
		},
		{
			name:    "negative workers",
			cfg:     &ReduceConfig{Workers: ptrInt(-1)},
			wantErr: true,
		},
		{
			name:    "unknown missing-master policy",
			cfg:     &ReduceConfig{MissingMaster: ptrString("ignore")},
			wantErr: true,
		},
		{
			name:    "unknown nonfinite policy",
			cfg:     &ReduceConfig{NonFinite: ptrString("clip")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// reduceFlags builds a flag set with the subset of the CLI flags the
// merge tests exercise.
func reduceFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("astroreduce", flag.ContinueOnError)
	fs.String("darks", "./darks", "")
	fs.String("flats", "./flats", "")
	fs.String("out", "./output", "")
	fs.Int("level", 0, "")
	fs.Bool("verbose", false, "")
	return fs
}

func flagValue(t *testing.T, fs *flag.FlagSet, name string) string {
	t.Helper()
	f := fs.Lookup(name)
	if f == nil {
		t.Fatalf("flag -%s not declared", name)
	}
	return f.Value.String()
}

func TestApply(t *testing.T) {
	fs := reduceFlags()
	if err := fs.Parse([]string{"-darks", "cli/darks"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg := &ReduceConfig{
		Darks:   ptrString("file/darks"),
		Out:     ptrString("file/out"),
		Level:   ptrInt(2),
		Verbose: ptrBool(true),
	}
	if err := cfg.Apply(fs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// An explicit command-line flag beats the file.
	if got := flagValue(t, fs, "darks"); got != "cli/darks" {
		t.Errorf("darks = %q, want cli/darks", got)
	}
	// Unset flags take the file's values.
	if got := flagValue(t, fs, "out"); got != "file/out" {
		t.Errorf("out = %q, want file/out", got)
	}
	if got := flagValue(t, fs, "level"); got != "2" {
		t.Errorf("level = %q, want 2", got)
	}
	if got := flagValue(t, fs, "verbose"); got != "true" {
		t.Errorf("verbose = %q, want true", got)
	}
	// Flags the file does not mention keep their defaults.
	if got := flagValue(t, fs, "flats"); got != "./flats" {
		t.Errorf("flats = %q, want ./flats", got)
	}
}

func TestApplyEmptyConfig(t *testing.T) {
	fs := reduceFlags()
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg := &ReduceConfig{}
	if err := cfg.Apply(fs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := flagValue(t, fs, "darks"); got != "./darks" {
		t.Errorf("darks = %q, want ./darks", got)
	}
	if got := flagValue(t, fs, "level"); got != "0" {
		t.Errorf("level = %q, want 0", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AR_DARKS", "env/darks")
	t.Setenv("AR_FLATS", "env/flats")
	t.Setenv("AR_OUT", "env/out")
	// AR_DB has no matching flag in this set and must be skipped.
	t.Setenv("AR_DB", "env/runs.db")

	fs := reduceFlags()
	if err := fs.Parse([]string{"-darks", "cli/darks"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Simulate a value that came from the config file.
	if err := fs.Set("out", "file/out"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := ApplyEnv(fs); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	// Command line and config file both beat the environment.
	if got := flagValue(t, fs, "darks"); got != "cli/darks" {
		t.Errorf("darks = %q, want cli/darks", got)
	}
	if got := flagValue(t, fs, "out"); got != "file/out" {
		t.Errorf("out = %q, want file/out", got)
	}
	// A flag nothing else set takes the environment value.
	if got := flagValue(t, fs, "flats"); got != "env/flats" {
		t.Errorf("flats = %q, want env/flats", got)
	}
}

func TestApplyEnvNoVariables(t *testing.T) {
	// t.Setenv registers the restore; the test wants the variable absent.
	t.Setenv("AR_DARKS", "")
	os.Unsetenv("AR_DARKS")

	fs := reduceFlags()
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := ApplyEnv(fs); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got := flagValue(t, fs, "darks"); got != "./darks" {
		t.Errorf("darks = %q, want ./darks", got)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"darks", "AR_DARKS"},
		{"missing-master", "AR_MISSING_MASTER"},
		{"nonfinite", "AR_NONFINITE"},
		{"logfile", "AR_LOGFILE"},
	}
	for _, tt := range tests {
		if got := EnvKey(tt.flag); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.flag, got, tt.want)
		}
	}
}
