package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/core"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    core.ClockTime
		wantErr bool
	}{
		{in: "08:00", want: core.ClockTime{Hour: 8}},
		{in: " 7:45 ", want: core.ClockTime{Hour: 7, Minute: 45}},
		{in: "13:05:59", want: core.ClockTime{Hour: 13, Minute: 5}},
		{in: "24:00", wantErr: true},
		{in: "08:60", wantErr: true},
		{in: "0800", wantErr: true},
		{in: "ocho", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := core.ParseClockTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockTime(t *testing.T) {
	eight := core.ClockTime{Hour: 8}
	late := core.ClockTime{Hour: 8, Minute: 30}

	assert.Equal(t, "08:30", late.String())
	assert.True(t, eight.Before(late))
	assert.False(t, late.Before(eight))
	assert.False(t, eight.Before(eight))
	assert.True(t, core.ClockTime{}.IsZero())

	lima, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 13, 30, 0, 0, time.UTC), late.On(2024, time.March, 4, lima).UTC())

	var ct core.ClockTime
	require.NoError(t, ct.UnmarshalText([]byte("10:15")))
	assert.Equal(t, core.ClockTime{Hour: 10, Minute: 15}, ct)
	assert.Error(t, ct.UnmarshalText([]byte("10h15")))

	for _, v := range []interface{}{"07:05", []byte("07:05"), time.Date(1, 1, 1, 7, 5, 0, 0, time.UTC)} {
		var scanned core.ClockTime
		require.NoError(t, scanned.Scan(v))
		assert.Equal(t, core.ClockTime{Hour: 7, Minute: 5}, scanned)
	}
	assert.Error(t, ct.Scan(42))

	val, err := late.Value()
	require.NoError(t, err)
	assert.Equal(t, "08:30", val)
}
