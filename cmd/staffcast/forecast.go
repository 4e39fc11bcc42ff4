package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"staffcast/forecast"
)

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Print a forecast for one series",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "property",
				Usage:    "Property ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "role",
				Value: "housekeeping",
				Usage: "Role to forecast",
			},
			&cli.StringFlag{
				Name:  "start",
				Usage: "Start date (YYYY-MM-DD, default tomorrow)",
			},
			&cli.IntFlag{
				Name:  "horizon",
				Value: 7,
				Usage: "Days to forecast",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: runForecast,
	}
}

func runForecast(c *cli.Context) error {
	logger := newLogger(c)
	ctx := context.Background()

	history, err := openHistoryStore(c)
	if err != nil {
		return err
	}
	defer history.Close()

	control, err := openControlStore(c)
	if err != nil {
		return err
	}
	defer control.Close()

	start := forecast.Day(time.Now()).AddDate(0, 0, 1)
	if s := c.String("start"); s != "" {
		start, err = forecast.ParseDay(s)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}

	key := forecast.SeriesKey{PropertyID: c.Int64("property"), Role: c.String("role")}
	svc := forecast.NewService(history, control, control, nil, logger, forecast.ServiceOptions{})

	points, err := svc.GetForecast(ctx, key, start, c.Int("horizon"))
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		return outputForecastJSON(key, points)
	default:
		outputForecastTable(key, points)
		return nil
	}
}

func outputForecastJSON(key forecast.SeriesKey, points []forecast.Point) error {
	type day struct {
		Date       string  `json:"date"`
		Predicted  float64 `json:"predicted"`
		Lower      float64 `json:"lower"`
		Upper      float64 `json:"upper"`
		IsOverride bool    `json:"is_override"`
	}
	days := make([]day, len(points))
	for i, p := range points {
		days[i] = day{
			Date:       p.Day.Format(forecast.DateLayout),
			Predicted:  p.Predicted,
			Lower:      p.Lower,
			Upper:      p.Upper,
			IsOverride: p.IsOverride,
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"property_id": key.PropertyID,
		"role":        key.Role,
		"predictions": days,
	})
}

func outputForecastTable(key forecast.SeriesKey, points []forecast.Point) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  📅 STAFFING FORECAST  property=%-4d role=%-14s ║\n", key.PropertyID, truncate(key.Role, 14))
	fmt.Println("╠══════════════════════════════════════════════════════════╣")
	fmt.Println("║  Date         Predicted      80% interval                ║")
	for _, p := range points {
		marker := "   "
		if p.IsOverride {
			marker = "OVR"
		}
		fmt.Printf("║  %s   %8.1f %s   [%6.1f, %6.1f]           ║\n",
			p.Day.Format(forecast.DateLayout), p.Predicted, marker, p.Lower, p.Upper)
	}
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
