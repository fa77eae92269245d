package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"dashcam-geotag/internal/cache"
	"dashcam-geotag/internal/cli"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/export"
	"dashcam-geotag/internal/interp"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/nmea"
	"dashcam-geotag/internal/pipeline"
	"dashcam-geotag/internal/sink"
	"dashcam-geotag/internal/video"
)

const startTimeLayout = "2006:01:02 15:04:05.000000"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		videos  cli.StringList
		verbose cli.Count

		gpxOut       = flag.String("gpx", "", "Write the GPS track as GPX to this file (- for stdout)")
		rmcOut       = flag.String("gprmc", "", "Write the raw RMC sentences to this file")
		startOut     = flag.String("starttime", "", "Write the start time of the first video to this file")
		startOffset  = flag.Float64("starttime-offset", 0, "Seconds added to the written start time")
		frameRateOut = flag.String("framerate", "", "Write the frame rate of the first video to this file")
		keyRateOut   = flag.String("keyframerate", "", "Write the key frame rate of the first video to this file")
		gpsRateOut   = flag.String("gpsrate", "", "Write the GPS fix rate of the first video to this file")
		recordsOut   = flag.String("o", "-", "Write the per-image geotags as JSON lines to this file")

		cameraYaw        = flag.Float64("camera-yaw", cfg.Interpolation.CameraYaw, "Camera yaw relative to the direction of travel in degrees (rear camera: 180)")
		interpolateTrack = flag.Bool("interpolate-track", cfg.Interpolation.InterpolateTrack, "Compute speed and heading from the positions")
		frameOffset      = flag.Int("frame-offset", cfg.Interpolation.FrameOffset, "Added to the frame number in each image filename")
		maxGap           = flag.Duration("max-gap", cfg.Interpolation.MaxGap, "Leave images without position when fixes are further apart than this")
		workers          = flag.Int("workers", cfg.Workers, "Number of videos analysed in parallel")
	)
	flag.Var(&videos, "i", "Input video file (repeatable, in the same order as the image patterns)")
	flag.Var(&verbose, "v", "Increase verbosity (repeatable)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "geotag - geotag images extracted from dashcam videos\n\n")
		fmt.Fprintf(os.Stderr, "usage: geotag -i VIDEO [-i VIDEO ...] [PATTERN ...]\n\n")
		fmt.Fprintf(os.Stderr, "examples:\n")
		fmt.Fprintf(os.Stderr, "  ffmpeg -i 20220131_081559_0042_T_A.MP4 -frame_pts 1 0042A/%%08d.jpg\n")
		fmt.Fprintf(os.Stderr, "  geotag -i 20220131_081559_0042_T_A.MP4 0042A/%%08d.jpg\n")
		fmt.Fprintf(os.Stderr, "  geotag -i 20220131_081559_0042_T_B.MP4 -camera-yaw=180 0042B/%%08d.jpg\n")
		fmt.Fprintf(os.Stderr, "  geotag -i 0042_T_A.MP4 -i 0043_T_A.MP4 0042/%%08d.jpg 0043/%%08d.jpg\n")
		fmt.Fprintf(os.Stderr, "  geotag -i 0042_T_A.MP4 -gpx track.gpx -framerate -\n\n")
		fmt.Fprintf(os.Stderr, "options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if len(videos) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if verbose > 0 {
		logging.SetVerbosity(int(verbose))
	} else {
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
	}
	log := logging.Logger()

	patterns := flag.Args()
	if len(patterns) > len(videos) {
		fmt.Fprintf(os.Stderr, "%d image patterns for %d videos\n", len(patterns), len(videos))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	order, _ := nmea.ParseDateOrder(cfg.GPS.DateOrder)
	var store cache.Store
	if cfg.Cache.ValkeyAddr != "" {
		v, err := cache.NewValkey(cfg.Cache.ValkeyAddr)
		if err != nil {
			log.Warn("valkey unavailable, analysing without cache", "error", err)
		} else {
			store = v
			defer v.Close()
		}
	}

	loaded, err := pipeline.LoadVideos(ctx, videos, pipeline.LoadOptions{
		Workers:  *workers,
		NMEA:     nmea.Options{VerifyChecksum: cfg.GPS.VerifyChecksum, DateOrder: order},
		Cache:    store,
		CacheTTL: cfg.Cache.TTL,
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, v := range loaded {
		if v.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", v.Path, v.Err)
			os.Exit(1)
		}
	}

	if len(patterns) > 0 {
		var images []models.ImageFrame
		for n, pattern := range patterns {
			found, err := pipeline.FindImages(pattern, n, *frameOffset)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			log.Info("processing images", "count", len(found), "pattern", pattern, "video", loaded[n].Path)
			images = append(images, found...)
		}

		w, err := cli.Create(*recordsOut)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		out := sink.NewJSONLines(w)
		rep, err := pipeline.Geotag(ctx, loaded, images, out, pipeline.GeotagOptions{
			Interp:           interp.Options{MaxGap: *maxGap, CameraYaw: *cameraYaw, Logger: log},
			InterpolateTrack: *interpolateTrack,
			Logger:           log,
		})
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		log.Info("geotagged images", "written", rep.Written, "resolved", rep.Resolved,
			"gaps", rep.Gaps, "out_of_range", rep.OutOfRange)
		return
	}

	track, err := pipeline.Merge(loaded, *interpolateTrack, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := writeOutputs(loaded[0], track, outputs{
		gpx: *gpxOut, rmc: *rmcOut, start: *startOut, frameRate: *frameRateOut,
		keyRate: *keyRateOut, gpsRate: *gpsRateOut, startOffset: *startOffset,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type outputs struct {
	gpx, rmc, start, frameRate, keyRate, gpsRate string
	startOffset                                   float64
}

// writeOutputs 辅助输出, 时间和速率取自第一个视频
func writeOutputs(first *pipeline.Video, track *pipeline.Track, o outputs) error {
	if err := cli.WriteFile(o.rmc, func(w io.Writer) error { return export.WriteRMC(w, track.Fixes) }); err != nil {
		return err
	}
	if err := cli.WriteFile(o.gpx, func(w io.Writer) error { return export.WriteGPX(w, track.Fixes) }); err != nil {
		return err
	}

	if o.start == "" && o.frameRate == "" && o.keyRate == "" && o.gpsRate == "" {
		return nil
	}
	info := first.Info
	if !info.HasTiming() {
		return fmt.Errorf("%s: %w", first.Path, video.ErrInsufficientGPS)
	}

	start := info.StartTime.Add(time.Duration(o.startOffset * float64(time.Second)))
	writers := []struct {
		path  string
		value string
	}{
		{o.start, start.UTC().Format(startTimeLayout)},
		{o.frameRate, fmt.Sprintf("%d", int(info.FrameRate))},
		{o.keyRate, fmt.Sprintf("%d", info.KeyFrameRate)},
		{o.gpsRate, fmt.Sprintf("%d", int(info.FixRate))},
	}
	for _, wr := range writers {
		value := wr.value
		if err := cli.WriteFile(wr.path, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, value)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
