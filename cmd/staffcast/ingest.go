package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"staffcast/forecast"
	"staffcast/pkg/platform"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load observed demand from a CSV file (property_id,role,date,demand)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the CSV file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Post to a running server instead of writing to ClickHouse directly (e.g. http://localhost:8080)",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "X-API-Key for the ingestion endpoint",
				EnvVars: []string{"STAFFCAST_INGEST_API_KEY"},
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	logger := newLogger(c)

	observations, err := readObservationsCSV(c.String("file"))
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return fmt.Errorf("no observations found in %s", c.String("file"))
	}

	if url := c.String("url"); url != "" {
		client := platform.NewHTTPClient(3, 30*time.Second, logger)
		client.APIKey = c.String("api-key")

		type wireObs struct {
			PropertyID int64   `json:"property_id"`
			Role       string  `json:"role"`
			Date       string  `json:"date"`
			Demand     float64 `json:"demand"`
		}
		batch := make([]wireObs, len(observations))
		for i, obs := range observations {
			batch[i] = wireObs{
				PropertyID: obs.Key.PropertyID,
				Role:       obs.Key.Role,
				Date:       obs.Day.Format(forecast.DateLayout),
				Demand:     obs.Demand,
			}
		}
		body, err := json.Marshal(map[string]any{"observations": batch})
		if err != nil {
			return err
		}

		resp, err := client.PostJSON(url+"/api/v1/forecast/observations", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			payload, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("ingestion rejected (%d): %s", resp.StatusCode, payload)
		}
		fmt.Printf("✅ posted %d observations to %s\n", len(observations), url)
		return nil
	}

	store, err := openHistoryStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.RecordObservations(ctx, observations); err != nil {
		return err
	}
	fmt.Printf("✅ ingested %d observations\n", len(observations))
	return nil
}

// readObservationsCSV parses property_id,role,date,demand rows. A
// header row is detected and skipped.
func readObservationsCSV(path string) ([]forecast.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4

	var observations []forecast.Observation
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv parse error: %w", err)
		}
		line++

		if line == 1 && record[0] == "property_id" {
			continue
		}

		propertyID, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid property_id %q", line, record[0])
		}
		day, err := forecast.ParseDay(record[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, record[2])
		}
		demand, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid demand %q", line, record[3])
		}

		observations = append(observations, forecast.Observation{
			Key:    forecast.SeriesKey{PropertyID: propertyID, Role: record[1]},
			Day:    day,
			Demand: demand,
		})
	}
	return observations, nil
}
