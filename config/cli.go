package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Cli struct {
	HTTPAddress       string
	APIToken          string
	TmpDir            string
	MaxConcurrentJobs int
	MaxQueueDepth     int

	JobTimeout        time.Duration
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	UploadTimeout     time.Duration

	WhisperBin      string
	WhisperModelDir string
	WhisperModel    string

	YtDlpBin       string
	YouTubeCookies string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	DriveBucket string
	DrivePrefix string

	SubtitleFont  string
	SubtitleSize  int
	SubtitleColor string

	PprofPort int
}

// ParseLegacyEnv picks up the bare environment variable names the original
// deployment used, so existing setups keep working without the SHORTS_API_
// prefix. Prefixed flags win when both are set.
func (cli *Cli) ParseLegacyEnv() {
	if v := os.Getenv("MAKE_SHARED_SECRET"); v != "" && cli.APIToken == "" {
		cli.APIToken = v
	}
	if v := os.Getenv("TMP_DIR"); v != "" && cli.TmpDir == os.TempDir() {
		cli.TmpDir = v
	}
	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cli.MaxConcurrentJobs = n
		}
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" && ValidWhisperModel(v) {
		cli.WhisperModel = v
	}
	if v := os.Getenv("YOUTUBE_COOKIES_PATH"); v != "" && cli.YouTubeCookies == "" {
		cli.YouTubeCookies = v
	}
}

// Validate returns human-readable problems with the configuration. The
// server still boots with a non-empty list; callers decide what is fatal.
func (cli *Cli) Validate() []string {
	var errs []string
	if cli.APIToken == "" {
		errs = append(errs, "api-token is empty, all authenticated requests will be rejected")
	}
	if cli.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Sprintf("max-concurrent-jobs must be >= 1, got %d", cli.MaxConcurrentJobs))
	}
	if cli.MaxQueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("max-queue-depth must be >= 1, got %d", cli.MaxQueueDepth))
	}
	if !ValidWhisperModel(cli.WhisperModel) {
		errs = append(errs, fmt.Sprintf("whisper-model %q is not one of %v", cli.WhisperModel, WhisperModels))
	}
	if cli.DriveBucket == "" {
		errs = append(errs, "drive-bucket is empty, clips will only be published to the local download endpoint")
	}
	if cli.LLMAPIKey == "" {
		errs = append(errs, "llm-api-key is empty, segment selection will always use the rule-based strategy")
	}
	return errs
}

func (cli *Cli) DriveConfigured() bool {
	return cli.DriveBucket != ""
}

func (cli *Cli) LLMConfigured() bool {
	return cli.LLMAPIKey != ""
}
