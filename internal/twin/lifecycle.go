package twin

import (
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/twinfleet/internal/domain"
)

// ErrDecommissioned is returned for lifecycle changes to a retired unit.
var ErrDecommissioned = errors.New("twin: equipment is decommissioned")

// LifecycleEntry records one upgrade or part replacement.
type LifecycleEntry struct {
	What string    `json:"what"`
	At   time.Time `json:"at"`
}

// LifecycleSummary is the installation and service history of a unit.
type LifecycleSummary struct {
	EquipmentID      string           `json:"equipment_id"`
	InstalledAt      time.Time        `json:"installed_at"`
	Upgrades         []LifecycleEntry `json:"upgrades"`
	Replacements     []LifecycleEntry `json:"replacements"`
	DecommissionedAt *time.Time       `json:"decommissioned_at,omitempty"`
}

func (e *Equipment) RecordUpgrade(kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.retiredLocked(); err != nil {
		return err
	}
	e.upgrades = append(e.upgrades, LifecycleEntry{What: kind, At: e.now()})
	e.appendEventLocked(domain.EventUpgrade, "upgrade: "+kind)
	return nil
}

func (e *Equipment) RecordReplacement(part string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.retiredLocked(); err != nil {
		return err
	}
	e.replacements = append(e.replacements, LifecycleEntry{What: part, At: e.now()})
	e.appendEventLocked(domain.EventReplacement, "replaced: "+part)
	return nil
}

// ResetLifecycle zeroes the cumulative counters. It is the only operation
// that may decrease them.
func (e *Equipment) ResetLifecycle(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.retiredLocked(); err != nil {
		return err
	}
	e.operationalTicks = 0
	e.downtimeTicks = 0
	e.failureCount = 0
	e.appendEventLocked(domain.EventLifecycle, fmt.Sprintf("lifecycle reset: %s", reason))
	return nil
}

// Decommission stamps the retirement date once. The unit keeps its history
// and is still simulated, but further lifecycle changes are refused.
func (e *Equipment) Decommission(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.retiredLocked(); err != nil {
		return err
	}
	e.decommissioned = e.now()
	msg := "decommissioned"
	if reason != "" {
		msg += ": " + reason
	}
	e.appendEventLocked(domain.EventDecommission, msg)
	return nil
}

func (e *Equipment) Decommissioned() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.decommissioned.IsZero()
}

func (e *Equipment) retiredLocked() error {
	if e.decommissioned.IsZero() {
		return nil
	}
	return fmt.Errorf("%w: %s since %s", ErrDecommissioned, e.spec.ID, e.decommissioned.Format(time.RFC3339))
}

func (e *Equipment) LifecycleSummary() LifecycleSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sum := LifecycleSummary{
		EquipmentID:  e.spec.ID,
		InstalledAt:  e.spec.InstalledAt,
		Upgrades:     append([]LifecycleEntry(nil), e.upgrades...),
		Replacements: append([]LifecycleEntry(nil), e.replacements...),
	}
	if !e.decommissioned.IsZero() {
		at := e.decommissioned
		sum.DecommissionedAt = &at
	}
	return sum
}
