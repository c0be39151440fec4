package camera

import (
	"errors"
	"math"
	"testing"
)

func TestDetectionCenter(t *testing.T) {
	d := Detection{X: 100, Y: 200, W: 50, H: 30}
	cx, cy := d.Center()
	if cx != 125 || cy != 215 {
		t.Errorf("Center() = (%f, %f), want (125, 215)", cx, cy)
	}
}

func TestDetectionArea(t *testing.T) {
	d := Detection{W: 50, H: 30}
	if got := d.Area(); got != 1500 {
		t.Errorf("Area() = %f, want 1500", got)
	}
}

func TestDetectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		wantErr bool
	}{
		{"valid box", Detection{X: 10, Y: 10, W: 40, H: 40}, false},
		{"zero width", Detection{X: 10, Y: 10, W: 0, H: 40}, true},
		{"zero height", Detection{X: 10, Y: 10, W: 40, H: 0}, true},
		{"negative width", Detection{X: 10, Y: 10, W: -5, H: 40}, true},
		{"negative height", Detection{X: 10, Y: 10, W: 40, H: -5}, true},
		{"NaN coordinate", Detection{X: math.NaN(), Y: 10, W: 40, H: 40}, true},
		{"infinite coordinate", Detection{X: 10, Y: math.Inf(1), W: 40, H: 40}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.det.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var degErr *DegenerateDetectionError
				if !errors.As(err, &degErr) {
					t.Errorf("Validate() error type = %T, want *DegenerateDetectionError", err)
				}
			}
		})
	}
}
