package config

// Set at build time with -ldflags "-X github.com/clipfab/shorts-api/config.Version=..."
var Version = "undefined"
var Commit = "undefined"

// WhisperModels is the closed set of speech-to-text model sizes a request
// may ask for. Larger models exist but are too slow for the job timeout.
var WhisperModels = []string{"tiny", "base", "small", "medium"}

const DefaultWhisperModel = "small"

func ValidWhisperModel(name string) bool {
	for _, m := range WhisperModels {
		if m == name {
			return true
		}
	}
	return false
}

// Subtitle burn-in defaults. Size and fill color can be overridden per
// request; font family and outline are deployment-wide.
const (
	DefaultSubtitleFont    = "Noto Sans CJK JP"
	DefaultSubtitleSize    = 14
	DefaultSubtitleColor   = "&H00FFFFFF"
	DefaultSubtitleOutline = "&H00000000"
)

// MaxSourceBytes is the largest source video the fetcher accepts.
const MaxSourceBytes = int64(2) << 30

// MinGuaranteedClips is the minimum number of successful clips a job needs
// to finish as done rather than failed.
const MinGuaranteedClips = 3
