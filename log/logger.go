// Package log emits the structured job log contract: one JSON object per
// line on stdout with ts, level, trace_id, job_id, stage, msg and an
// optional meta object. Context registered for a job id is attached to
// every later line for that job.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

var defaultContextExpiry = 6 * time.Hour

var (
	mu       sync.RWMutex
	base     zerolog.Logger
	contexts *cache.Cache
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z"
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		return strings.ToUpper(l.String())
	}
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	contexts = cache.New(defaultContextExpiry, 10*time.Minute)
}

// SetOutput redirects all log lines, used by tests to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(w).With().Timestamp().Logger()
}

type jobContext struct {
	mu      sync.Mutex
	traceID string
	stage   string
	meta    map[string]interface{}
}

func (c *jobContext) set(keyvals ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch key {
		case "trace_id":
			c.traceID, _ = keyvals[i+1].(string)
		case "stage":
			c.stage, _ = keyvals[i+1].(string)
		default:
			if c.meta == nil {
				c.meta = map[string]interface{}{}
			}
			c.meta[key] = keyvals[i+1]
		}
	}
}

func (c *jobContext) snapshot() (string, string, map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta := make(map[string]interface{}, len(c.meta))
	for k, v := range c.meta {
		meta[k] = v
	}
	return c.traceID, c.stage, meta
}

func getContext(jobID string) *jobContext {
	if c, found := contexts.Get(jobID); found {
		return c.(*jobContext)
	}
	c := &jobContext{}
	if err := contexts.Add(jobID, c, defaultContextExpiry); err != nil {
		// Lost the insert race, use the winner.
		if existing, found := contexts.Get(jobID); found {
			return existing.(*jobContext)
		}
	}
	return c
}

// AddContext permanently attaches key/value pairs to a job id. The keys
// trace_id and stage become top-level fields; everything else lands in meta.
func AddContext(jobID string, keyvals ...interface{}) {
	getContext(jobID).set(keyvals...)
}

func Log(jobID string, message string, keyvals ...interface{}) {
	emit(zerolog.InfoLevel, jobID, message, nil, keyvals)
}

func LogDebug(jobID string, message string, keyvals ...interface{}) {
	emit(zerolog.DebugLevel, jobID, message, nil, keyvals)
}

func LogWarn(jobID string, message string, keyvals ...interface{}) {
	emit(zerolog.WarnLevel, jobID, message, nil, keyvals)
}

func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	emit(zerolog.ErrorLevel, jobID, message, err, keyvals)
}

// LogNoJobID is for log lines outside any job, startup and shutdown mostly.
// Should be used sparingly and with as much context in the message as possible.
func LogNoJobID(message string, keyvals ...interface{}) {
	emit(zerolog.InfoLevel, "", message, nil, keyvals)
}

func LogErrorNoJobID(message string, err error, keyvals ...interface{}) {
	emit(zerolog.ErrorLevel, "", message, err, keyvals)
}

// Fatal logs the error and exits. Only for unrecoverable startup failures.
func Fatal(err error) {
	emit(zerolog.FatalLevel, "", "fatal error", err, nil)
	os.Exit(1)
}

func emit(level zerolog.Level, jobID, message string, err error, keyvals []interface{}) {
	mu.RLock()
	logger := base
	mu.RUnlock()

	e := logger.WithLevel(level)

	var meta map[string]interface{}
	stage := ""
	if jobID != "" {
		traceID, ctxStage, ctxMeta := getContext(jobID).snapshot()
		e = e.Str("job_id", jobID)
		if traceID != "" {
			e = e.Str("trace_id", traceID)
		}
		stage = ctxStage
		meta = ctxMeta
	} else {
		meta = map[string]interface{}{}
	}

	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch key {
		case "stage":
			if s, ok := keyvals[i+1].(string); ok {
				stage = s
			}
		case "trace_id":
			if s, ok := keyvals[i+1].(string); ok {
				e = e.Str("trace_id", s)
			}
		default:
			meta[key] = keyvals[i+1]
		}
	}

	if stage != "" {
		e = e.Str("stage", stage)
	}
	if err != nil {
		e = e.Str("err", err.Error())
	}
	if len(meta) > 0 {
		e = e.Interface("meta", meta)
	}
	e.Msg(message)
}
