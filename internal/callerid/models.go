package callerid

import (
	"errors"
	"strings"
	"time"
)

// PoolEntry is one outbound number available to a workspace.
type PoolEntry struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Number      string `json:"number"`
	Healthy     bool   `json:"healthy"`
	Reserved    bool   `json:"reserved"`
	// TrunkMember marks numbers provisioned on the workspace's SIP
	// trunk. Trunk-routed dials prefer them.
	TrunkMember bool `json:"trunk_member"`
	// RotationEligible excludes a number from automatic rotation when
	// false. It can still be dialed as a fixed caller id.
	RotationEligible bool      `json:"rotation_eligible"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Usable reports whether the entry may be selected as a caller id.
func (p PoolEntry) Usable() bool {
	return p.Healthy && !p.Reserved
}

// Rotatable reports whether automatic rotation may pick the entry.
func (p PoolEntry) Rotatable() bool {
	return p.Usable() && p.RotationEligible
}

// AreaCode extracts the three-digit NANP area code from an E.164 number,
// or "" when the number is not a +1 number of the expected length.
func AreaCode(number string) string {
	n := strings.TrimSpace(number)
	if !strings.HasPrefix(n, "+1") || len(n) != 12 {
		return ""
	}
	return n[2:5]
}

var (
	ErrNoAvailableNumber = errors.New("callerid: no usable number in pool")
	ErrNotFound          = errors.New("callerid: number not found")
	ErrInvalidInput      = errors.New("callerid: invalid input")
)
