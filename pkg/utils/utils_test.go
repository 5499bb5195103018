package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestShortReference(t *testing.T) {
	assert.Equal(t, "550E8400", ShortReference("550e8400-e29b-41d4-a716-446655440000"))
	assert.Equal(t, "AB", ShortReference("ab"))
}

func TestEncodeGeohash_KnownValues(t *testing.T) {
	tests := []struct {
		name      string
		lat, lon  float64
		precision int
		want      string
	}{
		{"new york", 40.7128, -74.0060, 5, "dr5re"},
		{"london", 51.5074, -0.1278, 6, "gcpvj0"},
		{"origin", 0, 0, 4, "s000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeGeohash(tt.lat, tt.lon, tt.precision))
		})
	}
}

func TestEncodeGeohash_DefaultPrecision(t *testing.T) {
	assert.Len(t, EncodeGeohash(40.7, -74.0, 0), DefaultGeohashPrecision)
}

func TestValidGeohash(t *testing.T) {
	assert.True(t, ValidGeohash("dr5ru"))
	assert.False(t, ValidGeohash(""))
	assert.False(t, ValidGeohash("dr5ri"))
	assert.False(t, ValidGeohash("0123456789bcd"))
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm, tolerance      float64
	}{
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0, 0.001},
		{"jfk to times square", 40.6413, -73.7781, 40.7580, -73.9855, 21.7, 0.5},
		{"new york to london", 40.7128, -74.0060, 51.5074, -0.1278, 5570, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.wantKm, got, tt.tolerance)
		})
	}
}

func TestEstimateDriveMinutes(t *testing.T) {
	assert.Equal(t, 0, EstimateDriveMinutes(0))
	assert.Equal(t, 1, EstimateDriveMinutes(0.05))
	assert.Equal(t, 30, EstimateDriveMinutes(15))
	assert.Equal(t, 31, EstimateDriveMinutes(15.1))
}
