package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v2"

	"github.com/stomybooks/stomy-sync/pkg/config"
	"github.com/stomybooks/stomy-sync/pkg/database"
	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/devices"
	"github.com/stomybooks/stomy-sync/pkg/fakedevice"
	"github.com/stomybooks/stomy-sync/pkg/library"
	"github.com/stomybooks/stomy-sync/pkg/localvol"
	"github.com/stomybooks/stomy-sync/pkg/migrations"
	"github.com/stomybooks/stomy-sync/pkg/models"
	"github.com/stomybooks/stomy-sync/pkg/notify"
	"github.com/stomybooks/stomy-sync/pkg/readtime"
	stomysync "github.com/stomybooks/stomy-sync/pkg/sync"
	"github.com/stomybooks/stomy-sync/pkg/transfer"
	"github.com/stomybooks/stomy-sync/pkg/version"
)

// deps is everything a command needs, wired once per invocation.
type deps struct {
	cfg      *config.Config
	settings *config.SyncSettings
	library  *library.Service
	orch     *stomysync.Orchestrator
	files    transfer.FileService
	log      logger.Logger
}

func main() {
	log := logger.New()

	app := &cli.App{
		Name:    "syncd",
		Usage:   "sync reading progress and books between Stomy and e-reader devices",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fake", Usage: "use a simulated device instead of scanning for real ones"},
			&cli.BoolFlag{Name: "json", Usage: "print reports as JSON"},
			&cli.Float64Flag{Name: "fake-failure-rate", Usage: "failure injection rate for the simulated device", Value: 0},
		},
		Commands: []*cli.Command{
			{
				Name:  "detect",
				Usage: "list connected e-reader devices",
				Action: func(c *cli.Context) error {
					d, err := setup(c)
					if err != nil {
						return err
					}
					detected := d.orch.DetectDevices(c.Context)
					if c.Bool("json") {
						return printJSON(detected)
					}
					if len(detected) == 0 {
						fmt.Println("No devices connected")
						return nil
					}
					for _, device := range detected {
						fmt.Printf("%s (%s) at %s: %d books, %s free\n",
							device.Name, device.Type, device.MountPath,
							device.BookCount, formatBytes(device.FreeBytes))
					}
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "run one sync pass against the first connected device",
				Action: func(c *cli.Context) error {
					d, err := setup(c)
					if err != nil {
						return err
					}
					report, err := d.orch.SyncFirstDevice(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(report)
					}
					printReport(report)
					return nil
				},
			},
			{
				Name:      "transfer",
				Usage:     "copy library books onto the first connected device",
				ArgsUsage: "[book-id...]",
				Action: func(c *cli.Context) error {
					d, err := setup(c)
					if err != nil {
						return err
					}
					return runTransfer(c, d)
				},
			},
			{
				Name:  "books",
				Usage: "list library books with reading progress",
				Action: func(c *cli.Context) error {
					d, err := setup(c)
					if err != nil {
						return err
					}
					books, err := d.library.ListBooks(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(books)
					}
					for _, book := range books {
						fmt.Printf("%4d  %-40s %-20s %5.1f%%  %-8s %s\n",
							book.ID, book.Title, book.Author, book.Progress,
							book.ReadStatus, readtime.Format(book.TimeSpentReading))
					}
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "poll for devices and sync automatically until interrupted",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Usage: "detection poll interval", Value: 5 * time.Second},
				},
				Action: func(c *cli.Context) error {
					d, err := setup(c)
					if err != nil {
						return err
					}
					return runWatch(c, d)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("command failed")
	}
}

func setup(c *cli.Context) (*deps, error) {
	log := logger.New()
	log.Info("starting syncd", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		return nil, errors.Wrap(err, "config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "database error")
	}

	group, err := migrations.BringUpToDate(c.Context, db)
	if err != nil {
		return nil, errors.Wrap(err, "migrations error")
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID})
	}

	settings, err := config.LoadSyncSettings(cfg.SettingsFilePath)
	if err != nil {
		return nil, err
	}

	lib := library.NewService(db)
	locks := devices.NewLocker()

	var volumes devices.VolumeService
	var files transfer.FileService
	var openReader stomysync.ReaderOpener

	if c.Bool("fake") {
		sim := fakedevice.New(fakedevice.Options{
			FailureRate: c.Float64("fake-failure-rate"),
			Seed:        time.Now().UnixNano(),
		})
		volumes = sim
		files = sim
		openReader = func(context.Context, devices.Device) (devicedb.Reader, error) {
			return sim, nil
		}
	} else {
		local := localvol.NewService()
		volumes = local
		files = local
		// Reading databases are extracted by an external collaborator; no
		// in-process reader exists for real hardware.
		openReader = func(_ context.Context, device devices.Device) (devicedb.Reader, error) {
			return nil, errors.Errorf("no reading database reader available for %s devices", device.Type)
		}
	}

	var sink notify.Sink
	if settings.ShowNotifications {
		sink = notify.NewLogSink()
	}

	detector := devices.NewDetector(volumes)
	engine := transfer.NewEngine(files, locks)
	orch := stomysync.NewOrchestrator(lib, openReader, detector, engine, locks, settings, sink)

	return &deps{
		cfg:      cfg,
		settings: settings,
		library:  lib,
		orch:     orch,
		files:    files,
		log:      log,
	}, nil
}

func runTransfer(c *cli.Context, d *deps) error {
	detected := d.orch.DetectDevices(c.Context)
	if len(detected) == 0 {
		return errors.WithStack(stomysync.ErrNoDevice)
	}
	device := detected[0]

	books, err := selectBooks(c, d)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Println("No books to transfer")
		return nil
	}

	bar := pb.StartNew(len(books))
	result, err := d.orch.Transfer(c.Context, device, books, d.files, func(done, _ int) {
		bar.SetCurrent(int64(done))
	})
	bar.Finish()
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(result)
	}
	fmt.Println(result.Describe())
	for _, outcome := range result.Outcomes {
		if outcome.Status == transfer.StatusSkipped {
			fmt.Printf("  skipped %s: %s\n", outcome.Book.Title, outcome.SkipReason)
		}
		if outcome.Status == transfer.StatusFailed {
			fmt.Printf("  failed %s: %s\n", outcome.Book.Title, outcome.Error)
		}
	}
	return nil
}

func selectBooks(c *cli.Context, d *deps) ([]*models.Book, error) {
	all, err := d.library.ListBooks(c.Context)
	if err != nil {
		return nil, err
	}
	if c.Args().Len() == 0 {
		return all, nil
	}

	byID := map[int]*models.Book{}
	for _, book := range all {
		byID[book.ID] = book
	}
	books := make([]*models.Book, 0, c.Args().Len())
	for _, arg := range c.Args().Slice() {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Errorf("invalid book ID: %s", arg)
		}
		book, ok := byID[id]
		if !ok {
			return nil, errors.Errorf("book %d not found", id)
		}
		books = append(books, book)
	}
	return books, nil
}

// runWatch polls for device connections and runs a sync pass whenever a new
// device appears. Ctrl-C stops the loop between passes.
func runWatch(c *cli.Context, d *deps) error {
	graceful := signals.Setup()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go func() {
		<-graceful
		d.log.Info("stopping watch")
		cancel()
	}()

	interval := c.Duration("interval")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info("watching for devices", logger.Data{"interval": interval.String()})

	var previous []devices.Device
	for {
		current := d.orch.DetectDevices(ctx)
		connected, disconnected := devices.Diff(previous, current)
		previous = current

		for _, device := range disconnected {
			d.log.Info("device disconnected", logger.Data{"device": device.ID})
		}
		for _, device := range connected {
			d.log.Info("device connected", logger.Data{"device": device.ID})
			if !d.settings.AutoSync {
				continue
			}
			report, err := d.orch.Sync(ctx, device)
			if err != nil {
				d.log.Err(err).Error("sync failed", logger.Data{"device": device.ID})
				continue
			}
			printReport(report)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printReport(report *stomysync.Report) {
	fmt.Printf("Synced %s in %s\n", report.Device.Name, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Printf("  %d examined, %d matched, %d updated, %d unchanged, %d unmatched, %d errors\n",
		report.Stats.BooksExamined, report.Stats.BooksMatched, report.Stats.ProgressUpdated,
		report.Stats.NoChange, report.Stats.Unmatched, report.Stats.Errors)
	if report.Stats.AnnotationsImported > 0 || report.Stats.AnnotationsDuplicate > 0 {
		fmt.Printf("  %d annotations imported (%d already present)\n",
			report.Stats.AnnotationsImported, report.Stats.AnnotationsDuplicate)
	}
	if report.Stats.VocabularyImported > 0 {
		fmt.Printf("  %d vocabulary words imported\n", report.Stats.VocabularyImported)
	}
	for _, m := range report.Matches {
		fmt.Printf("  %s -> book %d (%s)\n", m.DeviceTitle, m.BookID, m.Confidence)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Println(string(data))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
