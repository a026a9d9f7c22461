package visa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	tests := []struct {
		in   string
		want Resource
	}{
		{
			in:   "TCPIP0::192.168.0.17::5025::SOCKET",
			want: Resource{Board: 0, Host: "192.168.0.17", Port: 5025, Class: ClassSocket},
		},
		{
			in:   "TCPIP::scope.lab.local::INSTR",
			want: Resource{Host: "scope.lab.local", Port: DefaultSCPIPort, Class: ClassInstr},
		},
		{
			in:   "TCPIP2::10.0.0.5::5555::SOCKET",
			want: Resource{Board: 2, Host: "10.0.0.5", Port: 5555, Class: ClassSocket},
		},
		{
			// Class defaults to INSTR when omitted.
			in:   "TCPIP::192.168.0.17",
			want: Resource{Host: "192.168.0.17", Port: DefaultSCPIPort, Class: ClassInstr},
		},
		{
			in:   "TCPIP0::192.168.0.17::5024::INSTR",
			want: Resource{Host: "192.168.0.17", Port: 5024, Class: ClassInstr},
		},
	}

	for _, tt := range tests {
		got, err := ParseResource(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseResourceRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"TCPIP0",
		"USB0::0x0957::0x1790::MY00012345::INSTR",
		"GPIB0::7::INSTR",
		"ASRL1::INSTR",
		"FOO::bar::INSTR",
		"TCPIPx::host::INSTR",
		"TCPIP0::host::notaport::SOCKET",
		"TCPIP0::host::99999::SOCKET",
		"TCPIP0::host::SOCKET",
		"TCPIP0::::INSTR",
	} {
		_, err := ParseResource(in)
		assert.Error(t, err, in)
	}
}

func TestResourceString(t *testing.T) {
	for _, in := range []string{
		"TCPIP0::192.168.0.17::5025::SOCKET",
		"TCPIP::scope.lab.local::INSTR",
		"TCPIP2::10.0.0.5::5555::SOCKET",
		"TCPIP::192.168.0.17::5024::INSTR",
	} {
		r, err := ParseResource(in)
		require.NoError(t, err, in)

		// Round trip through String must parse back to the same resource.
		again, err := ParseResource(r.String())
		require.NoError(t, err, r.String())
		assert.Equal(t, r, again, in)
	}
}

func TestResourceAddr(t *testing.T) {
	r, err := ParseResource("TCPIP0::192.168.0.17::5025::SOCKET")
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.17:5025", r.Addr())
}
