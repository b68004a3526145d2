package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	timetag "github.com/cos-cal/timetag_go/pkg"
	sqlx "github.com/jmoiron/sqlx"
)

var dbConn *sqlx.DB
var configuration timetag.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = timetag.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return
	}
	timetag.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration)
	}

	dbConn, err = timetag.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
	if err != nil {
		message := fmt.Errorf("Error connecting to database: %w", err)
		logger.Error(message.Error())
		return
	}
	defer dbConn.Close()
	refs := timetag.NewDBRefTables(dbConn, configuration.Verbosity)

	events, err := readEvents(configuration)
	if err != nil {
		logger.Error(err.Error())
		return
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Number of events: %d", events.NEvents())
		logger.Info(message, "main")
	}

	start := time.Now()
	pipeline := timetag.NewPipeline(&configuration, refs, events)
	if err := pipeline.Run(); err != nil {
		message := fmt.Errorf("Error calibrating exposure: %w", err)
		logger.Error(message.Error())
		return
	}

	timetag.WriteProducts(&configuration, pipeline)

	duration := time.Since(start)
	fmt.Printf("Total time: %d ms\n", duration.Milliseconds())
}

func printConfiguration(config timetag.Configuration) {
	message := fmt.Sprintf("Input file: %s", config.FileIn)
	logger.Info(message, "main")
	message = fmt.Sprintf("Detector: %s, segment: %s, opt elem: %s, cenwave: %d",
		config.Detector, config.Segment, config.OptElem, config.CenWave)
	logger.Info(message, "main")
	message = fmt.Sprintf("Exposure start: %.5f MJD, exposure time: %.3f s",
		config.ExpStart, config.ExpTime)
	logger.Info(message, "main")
	for c := timetag.Correction(0); c < timetag.NCorrections; c++ {
		message = fmt.Sprintf("%s = %s", c, config.Switches.Get(c))
		logger.Info(message, "main")
	}
}
