package rachio

// PersonInfo identifies the account owner behind a credential.
type PersonInfo struct {
	ID string `json:"id"`
}

// BaseStation is a physical hub aggregating one or more valves.
// Owned by the vendor cloud; read-only here.
type BaseStation struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serialNumber"`
}

// Valve is a single remotely controllable irrigation outlet.
// The id is globally unique and stable across discovery runs: the same
// physical valve always yields the same id.
type Valve struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// baseStationsResponse is the wire shape of GET /valve/listBaseStations/{userId}.
type baseStationsResponse struct {
	BaseStations []BaseStation `json:"baseStations"`
}

// valvesResponse is the wire shape of GET /valve/listValves/{baseStationId}.
type valvesResponse struct {
	Valves []Valve `json:"valves"`
}

// startWateringRequest is the body of PUT /valve/startWatering.
type startWateringRequest struct {
	ValveID         string `json:"valveId"`
	DurationSeconds int    `json:"durationSeconds"`
}

// stopWateringRequest is the body of PUT /valve/stopWatering.
// No duration field: stop is unconditional.
type stopWateringRequest struct {
	ValveID string `json:"valveId"`
}
