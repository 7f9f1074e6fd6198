package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipfab/shorts-api/api"
	"github.com/clipfab/shorts-api/clients"
	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/clipfab/shorts-api/pprof"
	"github.com/clipfab/shorts-api/selector"
	"github.com/clipfab/shorts-api/video"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	fs := flag.NewFlagSet("shorts-api", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")

	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8080", "Address to bind the HTTP API to")
	fs.StringVar(&cli.APIToken, "api-token", "", "Shared secret expected in the X-API-KEY header")
	fs.StringVar(&cli.TmpDir, "tmp-dir", os.TempDir(), "Directory for per-job scratch space and locally published clips")
	fs.IntVar(&cli.MaxConcurrentJobs, "max-concurrent-jobs", 2, "Number of jobs processed in parallel")
	fs.IntVar(&cli.MaxQueueDepth, "max-queue-depth", 32, "Number of jobs allowed to wait for a worker before submissions get a 429")

	fs.DurationVar(&cli.JobTimeout, "job-timeout", 30*time.Minute, "Wall clock limit for one job end to end")
	fs.DurationVar(&cli.FetchTimeout, "fetch-timeout", 10*time.Minute, "Limit for downloading the source video")
	fs.DurationVar(&cli.TranscribeTimeout, "transcribe-timeout", 30*time.Minute, "Limit for transcribing the source audio")
	fs.DurationVar(&cli.UploadTimeout, "upload-timeout", 10*time.Minute, "Limit for publishing a single clip")

	fs.StringVar(&cli.WhisperBin, "whisper-bin", "whisper-cli", "Path to the whisper.cpp CLI binary")
	fs.StringVar(&cli.WhisperModelDir, "whisper-model-dir", "/models", "Directory holding the ggml whisper models")
	fs.StringVar(&cli.WhisperModel, "whisper-model", config.DefaultWhisperModel, "Default speech-to-text model size")

	fs.StringVar(&cli.YtDlpBin, "yt-dlp-bin", "yt-dlp", "Path to the yt-dlp binary")
	fs.StringVar(&cli.YouTubeCookies, "youtube-cookies", "", "Path to a cookies.txt passed to yt-dlp, for age-restricted sources")

	fs.StringVar(&cli.LLMAPIKey, "llm-api-key", "", "API key for the segment ranking LLM. Empty disables the LLM strategy")
	fs.StringVar(&cli.LLMBaseURL, "llm-base-url", "", "Override the LLM API base URL, e.g. for a compatible local server")
	fs.StringVar(&cli.LLMModel, "llm-model", "gpt-4o-mini", "Chat model used for segment ranking")

	fs.StringVar(&cli.DriveBucket, "drive-bucket", "", "Clip output bucket in the format s3://KEY:SECRET@endpoint/bucket?region=region. Empty publishes clips to the local download endpoint")
	fs.StringVar(&cli.DrivePrefix, "drive-prefix", "ready/", "Key prefix for published clips")

	fs.StringVar(&cli.SubtitleFont, "subtitle-font", config.DefaultSubtitleFont, "Font family for burned-in subtitles")
	fs.IntVar(&cli.SubtitleSize, "subtitle-size", config.DefaultSubtitleSize, "Default font size for burned-in subtitles")
	fs.StringVar(&cli.SubtitleColor, "subtitle-color", config.DefaultSubtitleColor, "Default ASS fill color for burned-in subtitles")

	fs.IntVar(&cli.PprofPort, "pprof-port", 6061, "Pprof listen port")
	_ = fs.String("config", "", "config file (optional)")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("SHORTS_API"),
	)
	if err != nil {
		log.Fatal(fmt.Errorf("error parsing cli: %w", err))
	}
	cli.ParseLegacyEnv()
	if len(fs.Args()) > 0 {
		log.Fatal(fmt.Errorf("unexpected extra arguments on command line: %v", fs.Args()))
	}

	if *version {
		fmt.Printf("shorts-api version: %s\n", config.Version)
		return
	}

	for _, warning := range cli.Validate() {
		log.LogNoJobID("configuration warning", "warning", warning)
	}

	go func() {
		log.LogErrorNoJobID("pprof listener stopped", pprof.ListenAndServe(cli.PprofPort))
	}()

	scratch := pipeline.NewScratch(cli.TmpDir)
	outputsDir, err := scratch.OutputsDir()
	if err != nil {
		log.Fatal(err)
	}

	var storage clients.Storage
	if cli.DriveConfigured() {
		s3Storage, err := clients.NewS3Storage(cli.DriveBucket, cli.DrivePrefix)
		if err != nil {
			log.Fatal(fmt.Errorf("error setting up drive storage: %w", err))
		}
		// Fail fast on bad credentials rather than on the first job
		startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := s3Storage.List(startupCtx, 1); err != nil {
			cancel()
			log.Fatal(fmt.Errorf("drive storage is not reachable: %w", err))
		}
		cancel()
		storage = s3Storage
	} else {
		storage = &clients.LocalStorage{Dir: outputsDir}
	}

	var chat selector.ChatClient
	if cli.LLMConfigured() {
		chat = clients.NewOpenAIChat(cli.LLMAPIKey, cli.LLMBaseURL, cli.LLMModel)
	}

	worker := &pipeline.Worker{
		Fetcher: &clients.SourceFetcher{
			Storage:        storage,
			Downloader:     &clients.YtDlp{Bin: cli.YtDlpBin, CookiesPath: cli.YouTubeCookies},
			HTTP:           clients.NewHTTPDownloadClient(),
			Prober:         video.Probe{},
			MaxSourceBytes: config.MaxSourceBytes,
			Timeout:        cli.FetchTimeout,
		},
		Transcriber: &clients.WhisperTranscriber{
			Bin:      cli.WhisperBin,
			ModelDir: cli.WhisperModelDir,
			Timeout:  cli.TranscribeTimeout,
		},
		Selector:      &selector.Engine{Chat: chat},
		Renderer:      video.FFMPEGRenderer{},
		Storage:       storage,
		Scratch:       scratch,
		JobTimeout:    cli.JobTimeout,
		UploadTimeout: cli.UploadTimeout,
		SubtitleStyle: video.SubtitleStyle{
			Font:         cli.SubtitleFont,
			Size:         cli.SubtitleSize,
			FillColor:    cli.SubtitleColor,
			OutlineColor: config.DefaultSubtitleOutline,
		},
	}

	coordinator := pipeline.NewCoordinator(worker, cli)

	group, ctx := errgroup.WithContext(context.Background())
	coordinator.Start(ctx)

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.HTTPAddress, cli.APIToken, coordinator, outputsDir)
	})

	group.Go(func() error {
		scratch.Janitor(ctx.Done())
		return nil
	})

	err = group.Wait()
	log.LogNoJobID("Shutdown complete", "reason", err.Error())
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-c:
		return fmt.Errorf("caught signal=%v", s)
	case <-ctx.Done():
		return nil
	}
}
