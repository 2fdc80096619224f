package fleet

import (
	"fmt"
	"time"

	"github.com/ghalamif/twinfleet/internal/app/config"
	"github.com/ghalamif/twinfleet/internal/twin"
)

// sensorStreamBase keeps sensor random streams apart from equipment streams.
const sensorStreamBase = 1 << 32

// Unit is one piece of equipment with its attached sensors.
type Unit struct {
	Equipment *twin.Equipment
	Sensors   []*twin.Sensor

	// eventCursor is advanced only by the controller loop.
	eventCursor int
}

func (u *Unit) ID() string { return u.Equipment.ID() }

// BuildUnits constructs the fleet in configuration order. Each entity gets
// its own random stream derived from seed, so runs with a fixed seed repeat.
func BuildUnits(equipment []config.EquipmentConfig, sensors []config.SensorConfig, seed uint64, now func() time.Time) ([]*Unit, error) {
	units := make([]*Unit, 0, len(equipment))
	byID := make(map[string]*Unit, len(equipment))

	for i, ec := range equipment {
		eq, err := twin.NewEquipment(ec.Spec(), twin.NewRand(seed, uint64(i)), now)
		if err != nil {
			return nil, err
		}
		u := &Unit{Equipment: eq}
		units = append(units, u)
		byID[eq.ID()] = u
	}

	for j, sc := range sensors {
		u, ok := byID[sc.EquipmentID]
		if !ok {
			return nil, fmt.Errorf("sensor %q: %w %q", sc.ID, config.ErrUnknownEquipment, sc.EquipmentID)
		}
		s, err := twin.NewSensor(sc.Spec(), twin.NewRand(seed, sensorStreamBase+uint64(j)))
		if err != nil {
			return nil, err
		}
		u.Sensors = append(u.Sensors, s)
	}

	return units, nil
}
