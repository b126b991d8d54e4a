package ton

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawDE = "0:dededededededededededededededededededededededededededededededede"

func TestNetwork_FriendlyRoundTrip(t *testing.T) {
	for _, n := range []Network{Testnet, {Testnet: false}} {
		friendly := n.Friendly(testAddress(0xde))
		assert.Len(t, friendly, 48)
		assert.False(t, IsRaw(friendly))

		addr, err := ParseAny(friendly)
		require.NoError(t, err)
		assert.Equal(t, rawDE, Raw(addr))
	}
}

func TestNetwork_TestnetChangesEncoding(t *testing.T) {
	addr := testAddress(0xde)
	assert.NotEqual(t, Testnet.Friendly(addr), Network{}.Friendly(addr))
}

func TestNormalizeRaw(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already raw", input: rawDE, want: rawDE},
		{name: "bare hex", input: strings.TrimPrefix(rawDE, "0:"), want: rawDE},
		{name: "checksummed", input: Testnet.Friendly(testAddress(0xde)), want: rawDE},
		{name: "garbage", input: "not-an-address", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRaw(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "0:dede...dede", FormatAddress(rawDE))
	assert.Equal(t, "short", FormatAddress("short"))
}
