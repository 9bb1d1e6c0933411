// Package mp4probe is a CLI utility that prints the track layout of mp4 files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mp4demux/pkg/demux"
)

const usage = `print codec configuration, samples and segments of mp4 files
example: mp4probe [-dump] ./video.mp4 ...`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dump := flag.Bool("dump", false, "print every sample")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Println(usage)
		return nil
	}

	cache := demux.NewCache()
	for _, path := range paths {
		pres, err := demux.ParseFileCached(path, cache)
		if err != nil {
			return fmt.Errorf("%v: %w", path, err)
		}
		printPresentation(os.Stdout, path, pres, *dump)
	}
	return nil
}

func printPresentation(w *os.File, path string, pres *demux.Presentation, dump bool) {
	fmt.Fprintf(w, "%v: movie timescale %v, %v track(s)\n",
		path, pres.MovieTimescale, len(pres.Tracks))

	for _, track := range pres.Tracks {
		fmt.Fprintf(w, "  track %v: %v codec=%v timescale=%v duration=%v ticks\n",
			track.ID, track.Kind, track.Codec, track.Timescale, track.Duration)

		if track.Kind == demux.TrackVideo {
			fmt.Fprintf(w, "    coded size %vx%v\n", track.CodedWidth, track.CodedHeight)
			if config, err := track.DecoderConfig(); err == nil {
				fmt.Fprintf(w, "    decoder config: %v, %v byte description\n",
					config.Codec, len(config.Description))
			}
		}

		fmt.Fprintf(w, "    %v sample(s), %v segment(s), %v payload bytes\n",
			len(track.Samples), len(track.Segments), len(track.Data))
		if n := len(track.Samples); n > 0 {
			first := track.Samples[0]
			last := track.Samples[n-1]
			fmt.Fprintf(w, "    pts %vus .. %vus\n", first.PresTime, last.PresTime)
		}

		if dump {
			for _, sample := range track.Samples {
				sync := " "
				if sample.IsSync {
					sync = "*"
				}
				fmt.Fprintf(w, "    %v sample %v dts=%vus pts=%vus dur=%vus bytes=%v@%v\n",
					sync, sample.Index, sample.DecodeTime, sample.PresTime,
					sample.Duration, sample.ByteLength, sample.ByteOffset)
			}
		}
	}
}
