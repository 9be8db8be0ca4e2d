package location

import (
	"context"
	"math"
)

// Reported is a Geolocator for a fix the client already obtained from its
// own device and sent with the request. It answers immediately with that
// fix, or with the error the device gave the client.
type Reported struct {
	Position *Position
	Err      *PositionError
}

func (r Reported) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if r.Err != nil {
		return Position{}, r.Err
	}
	if r.Position == nil || !finite(r.Position.Lat) || !finite(r.Position.Lng) {
		return Position{}, &PositionError{Code: PositionUnavailable, Message: "no position reported"}
	}
	return *r.Position, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
