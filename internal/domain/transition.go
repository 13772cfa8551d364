package domain

import "time"

// Watch is a named expression whose value changes are published.
type Watch struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expr" json:"expr"`
}

// Transition records a watch taking a new value. Initial is set on the first
// evaluation after startup, when there is no previous value to compare with.
type Transition struct {
	Watch       string    `json:"watch"`
	Expression  string    `json:"expr"`
	Value       bool      `json:"value"`
	Initial     bool      `json:"initial,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	Season      string    `json:"season,omitempty"`
	Nighttime   bool      `json:"nighttime"`
}
