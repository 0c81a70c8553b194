package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUint(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "1700000000", want: 1700000000},
		{in: " 42 ", want: 42},
		{in: "0x10", want: 16},
		{in: "0XfF", want: 255},
		{in: "0xffffffffffffffff", want: ^uint64(0)},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "12ab", wantErr: true},
		{in: "0x10000000000000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUint(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestUint64_JSON(t *testing.T) {
	var v struct {
		A Uint64 `json:"a"`
		B Uint64 `json:"b"`
		C Uint64 `json:"c"`
		D Uint64 `json:"d"`
		E Uint64 `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"34","c":"0x38","d":null,"e":""}`), &v))

	require.Equal(t, Uint64(12), v.A)
	require.Equal(t, Uint64(34), v.B)
	require.Equal(t, Uint64(56), v.C)
	require.Zero(t, v.D)
	require.Zero(t, v.E)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":12,"b":34,"c":56,"d":0,"e":0}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
}

func TestBytesToMB(t *testing.T) {
	require.Equal(t, uint64(0), BytesToMB(1024))
	require.Equal(t, uint64(3), BytesToMB(3*1024*1024+512))
}

func TestToLowerWithTrim(t *testing.T) {
	require.Equal(t, "ownership", ToLowerWithTrim("  OwnerShip\t"))
}
