package main

import (
	"bufio"
	"fmt"
	"os"

	timetag "github.com/cos-cal/timetag_go/pkg"
)

// readEvents ingests the raw event list named in the configuration.
// Only the FUV detector records a pulse height per event.
func readEvents(config timetag.Configuration) (*timetag.EventTable, error) {
	file, err := os.Open(config.FileIn)
	if err != nil {
		return nil, &timetag.ErrOpenFile{Filename: config.FileIn, Err: err}
	}
	defer file.Close()

	hasPha := config.Detector == "FUV"
	reader := bufio.NewReaderSize(file, 1<<20)
	events, err := timetag.ReadEvents(reader, config.MaxEvents, hasPha)
	if err != nil {
		return nil, fmt.Errorf("error reading event list %s: %w", config.FileIn, err)
	}
	return events, nil
}
