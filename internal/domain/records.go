package domain

import "time"

// Reading is one persisted sensor value. Immutable once written.
type Reading struct {
	SensorID    string    `json:"sensor_id" msgpack:"sensor_id"`
	EquipmentID string    `json:"equipment_id" msgpack:"equipment_id"`
	Value       float64   `json:"value" msgpack:"value"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Snapshot is a persisted point-in-time capture of an equipment unit.
type Snapshot struct {
	EquipmentID       string    `json:"equipment_id" msgpack:"equipment_id"`
	Status            Status    `json:"status" msgpack:"status"`
	EfficiencyPercent float64   `json:"efficiency_percent" msgpack:"efficiency_percent"`
	Temperature       float64   `json:"temperature" msgpack:"temperature"`
	Timestamp         time.Time `json:"timestamp" msgpack:"timestamp"`
}
