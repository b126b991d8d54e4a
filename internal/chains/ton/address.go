package ton

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// Network selects how checksummed addresses are rendered.
type Network struct {
	// Testnet sets the test-only flag of checksummed addresses.
	Testnet bool
}

// Testnet is the policy used against the testnet indexing API.
var Testnet = Network{Testnet: true}

// Friendly renders addr in checksummed form. All addresses are bounceable.
func (n Network) Friendly(addr *address.Address) string {
	a := address.NewAddress(0, byte(int8(addr.Workchain())), addr.Data())
	a.SetBounce(true)
	a.SetTestnetOnly(n.Testnet)
	return a.String()
}

// FriendlyString converts any accepted address form into checksummed form.
func (n Network) FriendlyString(s string) (string, error) {
	addr, err := ParseAny(s)
	if err != nil {
		return "", err
	}
	return n.Friendly(addr), nil
}

// Raw renders addr as workchain:hex.
func Raw(addr *address.Address) string {
	return fmt.Sprintf("%d:%s", addr.Workchain(), hex.EncodeToString(addr.Data()))
}

// IsRaw reports whether s looks like a workchain:hex address.
func IsRaw(s string) bool {
	return strings.Contains(s, ":")
}

// ParseAny accepts either workchain:hex or the checksummed base64 form.
func ParseAny(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}
	if IsRaw(s) {
		addr, err := address.ParseRawAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parsing raw address %q: %w", s, err)
		}
		return addr, nil
	}
	addr, err := address.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", s, err)
	}
	return addr, nil
}

// NormalizeRaw returns s in workchain:hex form. A bare 64 character hex
// string is assumed to live in the basechain.
func NormalizeRaw(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 && !IsRaw(s) {
		if _, err := hex.DecodeString(s); err == nil {
			s = "0:" + s
		}
	}
	addr, err := ParseAny(s)
	if err != nil {
		return "", err
	}
	return Raw(addr), nil
}

// FormatAddress truncates an address for display.
func FormatAddress(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
