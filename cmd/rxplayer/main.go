package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jilles-sg/rx-player/internal/buffer"
	"github.com/jilles-sg/rx-player/internal/chooser"
	"github.com/jilles-sg/rx-player/internal/controller"
	"github.com/jilles-sg/rx-player/internal/device"
	"github.com/jilles-sg/rx-player/internal/estimator"
	"github.com/jilles-sg/rx-player/internal/logging"
	"github.com/jilles-sg/rx-player/internal/metrics"
	"github.com/jilles-sg/rx-player/internal/model"
	"github.com/jilles-sg/rx-player/internal/pipeline"
	"github.com/jilles-sg/rx-player/internal/telemetry"
	"github.com/jilles-sg/rx-player/internal/transport"
	"github.com/jilles-sg/rx-player/internal/transport/h3"
)

func main() {
	color.Cyan("==============================")
	color.Cyan("       rx-player demo CLI")
	color.Cyan("==============================")

	url := flag.String("url", "https://example.invalid/seg", "base URL segments are fetched from (index appended)")
	representations := flag.String("representations", "lo:500000:640:360,mid:2000000:1280:720,hi:6000000:1920:1080", "comma-separated id:bitrate:width:height list, ascending by bitrate")
	segmentCount := flag.Int("segments", 20, "number of segments to simulate fetching")
	transportName := flag.String("transport", "http", "transport: http | http3")
	lowLatency := flag.Bool("low-latency", false, "enable low-latency chunk-ring bandwidth filtering")
	maxRetry := flag.Int("max-retry", 3, "max retry attempts per segment fetch")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	if err := validateFlags(*segmentCount, *maxRetry, *transportName); err != nil {
		color.Red("flag validation error: %v", err)
		os.Exit(1)
	}

	reps, err := parseRepresentations(*representations)
	if err != nil {
		color.Red("invalid -representations: %v", err)
		os.Exit(1)
	}
	adaptation, err := model.NewAdaptation(model.TrackVideo, "en", reps)
	if err != nil {
		color.Red("invalid representation ladder: %v", err)
		os.Exit(1)
	}

	log, err := logging.New(*logLevel)
	if err != nil {
		color.Red("failed to build logger: %v", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		color.Yellow("\nreceived shutdown signal, stopping playback session")
		cancel()
	}()

	fetcher, err := buildFetcher(*transportName, log)
	if err != nil {
		color.Red("failed to build transport: %v", err)
		os.Exit(1)
	}
	defer fetcher.Close()

	metricsBus := metrics.New(nil)

	telemetryMgr, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: "rxplayer",
		SampleRatio: 1,
	})
	if err != nil {
		color.Red("failed to build telemetry: %v", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownErr := telemetryMgr.Shutdown(context.Background()); shutdownErr != nil {
			color.Yellow("telemetry shutdown: %v", shutdownErr)
		}
	}()

	est := estimator.New(estimator.Config{
		FastHalfLifeSeconds: 2,
		SlowHalfLifeSeconds: 10,
		LowLatencyMode:      *lowLatency,
	}, log)
	videoChooser := chooser.New(model.TrackVideo, log)
	bufMonitor := buffer.NewMonitor(time.Now)
	deviceSource := device.NewSource()
	seedViewportWidth(deviceSource)

	var bandwidthSeries []float64
	pl := pipeline.New(pipeline.Config{
		Fetcher:   fetcher,
		MaxRetry:  *maxRetry,
		Log:       log,
		Metrics:   metricsBus,
		Telemetry: telemetryMgr,
		OnSample: func(s model.Sample) {
			est.AddMeasuredSample(s)
		},
	})

	ctrl := controller.New(controller.Config{
		Log:       log,
		Metrics:   metricsBus,
		Estimator: est,
		Choosers:  map[model.TrackType]*chooser.Chooser{model.TrackVideo: videoChooser},
		Pipelines: map[model.TrackType]*pipeline.Pipeline{model.TrackVideo: pl},
		Buffer:    bufMonitor,
		Device:    deviceSource,
	})
	ctrl.WithAdaptations(map[model.TrackType]*model.Adaptation{model.TrackVideo: adaptation})

	if err := ctrl.LoadContent(ctx, controller.LoadOptions{URL: *url, Transport: *transportName, AutoPlay: true}); err != nil {
		color.Red("load failed: %v", err)
		os.Exit(1)
	}
	ctrl.NotifyFirstFrameDecoded()
	ctrl.NotifyPlay()

	position := 0.0
	rows := [][]string{{"segment", "state", "representation", "bitrate", "estimate bps", "buffer gap"}}

	for i := 0; i < *segmentCount; i++ {
		if ctx.Err() != nil {
			break
		}
		segURL := fmt.Sprintf("%s-%d.m4s", *url, i)
		ch := pl.LoadSegment(ctx, currentOrLowest(videoChooser, adaptation), pipeline.SegmentDescriptor{URL: segURL, Index: i})

		var loadErr error
		for ev := range ch {
			switch ev.Kind {
			case pipeline.EventError:
				loadErr = ev.Err
			case pipeline.EventWarning:
				color.Yellow("segment %d warning: %v", i, ev.Err)
			}
		}
		if loadErr != nil {
			color.Red("segment %d failed permanently: %v", i, loadErr)
			ctrl.NotifyFatalError(loadErr)
			break
		}

		position += 4 // assume 4s segments for the demo timeline
		bufMonitor.Append(position-4, position)

		selections := ctrl.Tick(position - 2) // playback position trails the buffered edge
		sel := selections[model.TrackVideo]

		estimate, defined := ctrl.GetEstimate()
		estimateStr := "undefined"
		if defined {
			estimateStr = strconv.FormatFloat(estimate, 'f', 0, 64)
			bandwidthSeries = append(bandwidthSeries, estimate)
		}

		health := bufMonitor.Evaluate(position - 2)
		rows = append(rows, []string{
			strconv.Itoa(i),
			string(ctrl.State()),
			sel.Representation.ID,
			strconv.FormatInt(sel.Representation.Bitrate, 10),
			estimateStr,
			strconv.FormatFloat(health.Gap, 'f', 1, 64),
		})

		if sel.Changed {
			color.Green("segment %d: switched to representation %s (%d bps)", i, sel.Representation.ID, sel.Representation.Bitrate)
		}
	}

	ctrl.Stop()
	ctrl.Dispose()

	renderReport(rows, bandwidthSeries)
}

func validateFlags(segmentCount, maxRetry int, transportName string) error {
	if segmentCount <= 0 {
		return fmt.Errorf("-segments must be positive")
	}
	if maxRetry < 0 {
		return fmt.Errorf("-max-retry must be non-negative")
	}
	if transportName != "http" && transportName != "http3" {
		return fmt.Errorf("-transport must be http or http3")
	}
	return nil
}

func parseRepresentations(spec string) ([]model.Representation, error) {
	parts := strings.Split(spec, ",")
	reps := make([]model.Representation, 0, len(parts))
	for _, p := range parts {
		fields := strings.Split(strings.TrimSpace(p), ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("expected id:bitrate:width:height, got %q", p)
		}
		bitrate, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad bitrate in %q: %w", p, err)
		}
		width, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bad width in %q: %w", p, err)
		}
		height, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("bad height in %q: %w", p, err)
		}
		reps = append(reps, model.Representation{ID: fields[0], Bitrate: bitrate, Width: width, Height: height})
	}
	return reps, nil
}

func buildFetcher(name string, log *zap.Logger) (transport.Fetcher, error) {
	switch name {
	case "http":
		return transport.NewHTTPFetcher(nil, log), nil
	case "http3":
		return h3.New(h3.Config{}, log), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// seedViewportWidth reads the current terminal width as a stand-in for a
// browser viewport, since this demo runs in a terminal rather than a DOM.
func seedViewportWidth(src *device.Source) {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return
	}
	src.SetViewportWidth(w * 20) // approximate device pixels per terminal column
}

func currentOrLowest(c *chooser.Chooser, a *model.Adaptation) model.Representation {
	if r, ok := c.Current(); ok {
		return r
	}
	lowest, _ := a.Lowest()
	return lowest
}

func renderReport(rows [][]string, bandwidthSeries []float64) {
	fmt.Println()
	color.Cyan("playback summary")
	table := tablewriter.NewWriter(os.Stdout)
	if len(rows) > 1 {
		header := make([]any, len(rows[0]))
		for i, v := range rows[0] {
			header[i] = v
		}
		table.Header(header...)
		for _, row := range rows[1:] {
			rowAny := make([]any, len(row))
			for i, v := range row {
				rowAny[i] = v
			}
			_ = table.Append(rowAny...)
		}
		_ = table.Render()
	}

	if len(bandwidthSeries) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(bandwidthSeries, asciigraph.Height(10), asciigraph.Width(60), asciigraph.Caption("bandwidth estimate (bps)")))
	}
}
