package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"dashcam-geotag/internal/cli"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/events"
	"dashcam-geotag/internal/geo"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/sequence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var verbose cli.Count
	var (
		output      = flag.String("o", "-", "Write the sequenced geotags as JSON lines to this file")
		cameraYaw   = flag.Float64("camera-yaw", cfg.Interpolation.CameraYaw, "The yaw of the camera in degrees (eg. 270 for a left viewing camera)")
		geofence    = flag.String("geofence", "", "Do not geotag inside this circle: LAT,LON,RADIUS in decimal degrees and kilometers")
		minSpeed    = flag.Float64("min-speed", cfg.Sequence.MinSpeed, "Discard images when going slower than this (km/h)")
		maxTime     = flag.Float64("max-time", cfg.Sequence.MaxTime.Seconds(), "Max seconds between images in the same sequence")
		maxDistance = flag.Float64("max-distance", cfg.Sequence.MaxDistance, "Max meters between images in the same sequence")
		maxDOP      = flag.Float64("max-dop", cfg.Sequence.MaxDOP, "Discard images with a GPS DOP greater than this")
		publish     = flag.Bool("publish", false, "Publish every sequence to NATS (nats.url in the config)")
	)
	flag.Var(&verbose, "v", "Increase verbosity (repeatable)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sequence - cut geotagged images into sequences\n\n")
		fmt.Fprintf(os.Stderr, "usage: sequence [options] [FILE ...]\n\n")
		fmt.Fprintf(os.Stderr, "Reads geotags as JSON lines or JSON arrays from the files (default stdin).\n\n")
		fmt.Fprintf(os.Stderr, "examples:\n")
		fmt.Fprintf(os.Stderr, "  geotag -i 0042_T_A.MP4 0042A/%%08d.jpg | sequence\n")
		fmt.Fprintf(os.Stderr, "  sequence -camera-yaw=180 -o rear.jsonl 0042B.jsonl 0043B.jsonl\n")
		fmt.Fprintf(os.Stderr, "  sequence -geofence=48.137,11.575,1 -publish tags.jsonl\n\n")
		fmt.Fprintf(os.Stderr, "options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if verbose > 0 {
		logging.SetVerbosity(int(verbose))
	} else {
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
	}
	log := logging.Logger()

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	var geotags []models.Geotag
	for _, in := range inputs {
		gts, err := readGeotags(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", in, err)
			os.Exit(1)
		}
		geotags = append(geotags, gts...)
	}
	log.Info("found images", "count", len(geotags))

	for i := range geotags {
		sequence.ApplyCameraYaw(&geotags[i], *cameraYaw)
	}

	if *geofence != "" {
		center, radius, err := geo.ParseGeofence(*geofence)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Info("applying geofence", "center", center, "radius_km", radius)
		cleared := geo.Geofence(geotags, center, radius)
		log.Info("cleared images inside geofence", "count", cleared)
	}

	opts := sequence.FromConfig(config.SequenceConfig{
		MaxTime:     seconds(*maxTime),
		MaxDistance: *maxDistance,
		MaxDOP:      *maxDOP,
		MinSpeed:    *minSpeed,
	})
	opts.Logger = log
	runs, err := sequence.Cut(geotags, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ids := sequence.AssignIDs(runs)

	if *publish {
		if err := publishRuns(cfg.NATS, ids, runs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := cli.WriteFile(*output, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for i := range geotags {
			if err := enc.Encode(&geotags[i]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	n := 0
	for _, run := range runs {
		n += len(run)
	}
	fmt.Fprintf(os.Stderr, "Sequenced %d images into %d sequences (%d images discarded)\n",
		n, len(runs), len(geotags)-n)
}

func publishRuns(nc config.NATSConfig, ids []string, runs []sequence.Run) error {
	if nc.URL == "" {
		return errors.New("-publish needs nats.url (GEOTAG_NATS_URL)")
	}
	pub, err := events.NewNATS(nc.URL, nc.Subject)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx := context.Background()
	for i, run := range runs {
		if err := pub.PublishSequence(ctx, events.NewSequenceEvent(ids[i], run)); err != nil {
			return fmt.Errorf("publish sequence %s: %w", ids[i], err)
		}
	}
	return nil
}

// readGeotags 读取 JSON lines 或 JSON 数组
func readGeotags(path string) ([]models.Geotag, error) {
	r, err := cli.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []models.Geotag
	dec := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
			var list []models.Geotag
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, err
			}
			out = append(out, list...)
			continue
		}
		var gt models.Geotag
		if err := json.Unmarshal(raw, &gt); err != nil {
			return nil, err
		}
		out = append(out, gt)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
