package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/telemetry"
)

// Ingester is satisfied by *telemetry.Ingestor.
type Ingester interface {
	Ingest(ctx context.Context, r telemetry.Reading) (*telemetry.Event, error)
}

// Logger is the logging surface producers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Result summarises one batch.
type Result struct {
	Accepted int `json:"accepted"`
	Unknown  int `json:"unknown"`
	Rejected int `json:"rejected"`
}

// DecodeReadings accepts either a single reading object or an array of
// readings. Malformed input wraps hierarchy.ErrValidation.
func DecodeReadings(body []byte) ([]telemetry.Reading, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty reading payload", hierarchy.ErrValidation)
	}

	if body[0] == '[' {
		var readings []telemetry.Reading
		if err := json.Unmarshal(body, &readings); err != nil {
			return nil, fmt.Errorf("%w: decoding readings: %v", hierarchy.ErrValidation, err)
		}
		return readings, nil
	}

	var r telemetry.Reading
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: decoding reading: %v", hierarchy.ErrValidation, err)
	}
	return []telemetry.Reading{r}, nil
}

// Batch ingests readings one by one. Unknown uuids and invalid readings
// are logged and counted; any other failure stops the batch and is
// returned with the partial result.
func Batch(ctx context.Context, ing Ingester, readings []telemetry.Reading, logger Logger, source string) (Result, error) {
	var res Result
	for _, r := range readings {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, err := ing.Ingest(ctx, r)
		switch {
		case err == nil:
			res.Accepted++
		case errors.Is(err, hierarchy.ErrNotFound):
			res.Unknown++
			logger.Warn("reading for unknown device skipped", "source", source, "device_uuid", r.UUID)
		case errors.Is(err, hierarchy.ErrValidation):
			res.Rejected++
			logger.Warn("invalid reading skipped", "source", source, "device_uuid", r.UUID, "error", err)
		default:
			return res, fmt.Errorf("ingesting reading for %s: %w", r.UUID, err)
		}
	}
	if len(readings) > 0 {
		logger.Debug("readings ingested", "source", source,
			"accepted", res.Accepted, "unknown", res.Unknown, "rejected", res.Rejected)
	}
	return res, nil
}
