package models

import (
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		clock   string
		want    Slot
		wantErr bool
	}{
		{name: "plain", date: "2024-01-01", clock: "19:00", want: Slot{Date: "2024-01-01", Time: "19:00"}},
		{name: "seconds dropped", date: "2024-01-01", clock: "19:00:00", want: Slot{Date: "2024-01-01", Time: "19:00"}},
		{name: "whitespace", date: " 2024-01-01 ", clock: " 07:30", want: Slot{Date: "2024-01-01", Time: "07:30"}},
		{name: "bad month", date: "2024-13-01", clock: "19:00", wantErr: true},
		{name: "bad hour", date: "2024-01-01", clock: "25:00", wantErr: true},
		{name: "empty", date: "", clock: "", wantErr: true},
		{name: "wrong date format", date: "01/01/2024", clock: "19:00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlot(tt.date, tt.clock)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReservationStatus_CanTransitionTo(t *testing.T) {
	allowed := map[ReservationStatus][]ReservationStatus{
		ReservationPending:   {ReservationConfirmed, ReservationCancelled},
		ReservationConfirmed: {ReservationSeated, ReservationCancelled},
		ReservationSeated:    {ReservationCompleted},
	}
	all := []ReservationStatus{ReservationPending, ReservationConfirmed, ReservationCancelled, ReservationSeated, ReservationCompleted}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestBranch_Location(t *testing.T) {
	assert.Equal(t, "UTC", Branch{}.Location().String())
	assert.Equal(t, "UTC", Branch{Timezone: "Nowhere/Invalid"}.Location().String())
	assert.Equal(t, "Asia/Jakarta", Branch{Timezone: "Asia/Jakarta"}.Location().String())
}
