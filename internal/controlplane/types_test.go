package controlplane

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", `"2026-05-01T10:00:00Z"`, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"offset", `"2026-05-01T12:00:00+02:00"`, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"naive with micros", `"2026-05-01T10:00:00.250000"`, time.Date(2026, 5, 1, 10, 0, 0, 250000000, time.UTC), false},
		{"naive with space", `"2026-05-01 10:00:00"`, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"null", `null`, time.Time{}, false},
		{"number", `1714557600`, time.Time{}, true},
		{"garbage", `"yesterday"`, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.input), &ts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestHeartbeatResponse_NaiveServerTime(t *testing.T) {
	var resp HeartbeatResponse
	body := `{"ok": true, "server_time": "2026-05-01T10:00:00.123456", "node_id": 7, "node_name": "web-01"}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 2026, resp.ServerTime.Year())
	assert.Equal(t, "web-01", resp.NodeName)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"server_time":"2026-05-01T10:00:00.123456Z"`)
}
