// Command imagenetdl drives one configured download run to
// completion, printing progress as it goes. It is a minimal
// composition root over the downloader/statemachine packages — a
// graphical front end is explicitly out of scope (spec Non-goals),
// but it drives the same control surface a GUI would: it configures
// (unless a configuration was restored) and starts the state machine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-imagenet/imagenetdl/internal/appdata"
	"github.com/go-imagenet/imagenetdl/internal/batch"
	"github.com/go-imagenet/imagenetdl/internal/catalog"
	"github.com/go-imagenet/imagenetdl/internal/downloader"
	"github.com/go-imagenet/imagenetdl/internal/fetch"
	"github.com/go-imagenet/imagenetdl/internal/statemachine"
	"github.com/go-imagenet/imagenetdl/internal/telemetry"
)

const (
	wordNetIDsURL      = "http://www.image-net.org/api/text/imagenet.synset.obtain_synset_list"
	synsetURLsURLShape = "http://www.image-net.org/api/text/imagenet.synset.geturls?wnid=%s"
)

var (
	flagDestination       = flag.String("destination", "", "directory to write downloaded images into")
	flagNumberOfImages    = flag.Int("n", 100, "total number of images to download")
	flagImagesPerCategory = flag.Int("per-category", 90, "maximum images to keep per category")
	flagBatchSize         = flag.Int("batch-size", 100, "number of urls accumulated before a batch is fetched")
	flagWorkers           = flag.Int("workers", 100, "size of the fetch/validate worker pool")
	flagVerbose           = flag.Bool("v", false, "enable verbose debug logging")
)

func main() {
	flag.Parse()

	dataDir, err := appdata.EnsureDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving data directory: %v\n", err)
		os.Exit(1)
	}
	telemetry.Configure(dataDir)
	telemetry.SetVerbose(*flagVerbose)
	defer telemetry.Close()

	if telemetry.IsVerbose() {
		fmt.Fprintf(os.Stderr, "debug logging enabled, writing to %s\n", dataDir)
	}

	state := appdata.New(dataDir)

	pool := batch.NewPool(*flagWorkers, &fetch.HTTPFetcher{Timeout: 60 * time.Second}, fetch.ImageValidator{})
	defer pool.Close()

	store := &catalog.HTTPStore{
		Client:           http.DefaultClient,
		DataDir:          dataDir,
		IndexURL:         wordNetIDsURL,
		URLListURLFormat: synsetURLsURLShape,
	}

	factory := func(ctx context.Context, st *appdata.AppState) (*downloader.Manager, error) {
		d, err := downloader.New(ctx, st, store, pool)
		if err != nil {
			return nil, err
		}
		return downloader.NewManager(d), nil
	}

	sm := statemachine.New(state, factory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sm.Current() == statemachine.StateInitial {
		sm.Configure(appdata.DownloadConfiguration{
			Destination:       *flagDestination,
			NumberOfImages:    *flagNumberOfImages,
			ImagesPerCategory: *flagImagesPerCategory,
			BatchSize:         *flagBatchSize,
		})
	}

	if sm.Current() != statemachine.StateReady {
		doc, _ := state.ToJSON()
		fmt.Fprintf(os.Stderr, "configuration rejected: %s\n", doc)
		os.Exit(1)
	}

	if err := sm.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "starting download: %v\n", err)
		os.Exit(1)
	}

	for e := range sm.Events() {
		switch e.Kind {
		case statemachine.KindStateChanged:
			fmt.Printf("state -> %s\n", e.State)
		case statemachine.KindImagesLoaded:
			fmt.Printf("loaded %d images\n", len(e.Succeeded))
		case statemachine.KindDownloadFailed:
			fmt.Printf("failed %d images\n", len(e.Failed))
		case statemachine.KindDownloadPaused:
			fmt.Println("paused")
		case statemachine.KindDownloadResumed:
			fmt.Println("resumed")
		case statemachine.KindAllDownloaded:
			fmt.Println("done")
			return
		}
	}
}
