package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		segment Segment
		wantErr error
	}{
		{
			name:    "valid segment",
			segment: Segment{Idx: 0, StartMs: 0, EndMs: 2000, SourceText: "Guten Tag"},
		},
		{
			name:    "zero-duration segment is valid",
			segment: Segment{Idx: 3, StartMs: 5000, EndMs: 5000},
		},
		{
			name:    "negative index",
			segment: Segment{Idx: -1, StartMs: 0, EndMs: 100},
			wantErr: ErrNegativeSegmentIndex,
		},
		{
			name:    "end before start",
			segment: Segment{Idx: 0, StartMs: 2000, EndMs: 1000},
			wantErr: ErrInvalidTimeRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.segment.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSegmentDurationMs(t *testing.T) {
	s := Segment{StartMs: 2000, EndMs: 5000}
	assert.Equal(t, int64(3000), s.DurationMs())
}

func TestSegmentTranslationValidate(t *testing.T) {
	tr := SegmentTranslation{Idx: 0, Target: "en", Text: "Good day"}
	assert.NoError(t, tr.Validate())

	tr = SegmentTranslation{Idx: 0, Text: "Good day"}
	assert.ErrorIs(t, tr.Validate(), ErrTargetRequired)

	tr = SegmentTranslation{Idx: -2, Target: "en"}
	assert.ErrorIs(t, tr.Validate(), ErrNegativeSegmentIndex)
}
