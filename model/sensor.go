package model

import "strings"

type SensorType string

const (
	Temperature SensorType = "temperature"
	Gas         SensorType = "gas"
	Light       SensorType = "light"
)

// TopicPrefix is the first topic segment readings are published under.
const TopicPrefix = "sensors"

// AllSensorTypes lists the supported sensors in a stable order.
func AllSensorTypes() []SensorType {
	return []SensorType{Temperature, Gas, Light}
}

// ParseSensorType accepts only the fixed set of sensor types.
func ParseSensorType(s string) (SensorType, error) {
	switch t := SensorType(strings.TrimSpace(s)); t {
	case Temperature, Gas, Light:
		return t, nil
	}
	return "", ErrUnknownSensorType
}

func (t SensorType) Valid() bool {
	_, err := ParseSensorType(string(t))
	return err == nil
}

// Topic returns "sensors/<type>".
func (t SensorType) Topic() string {
	return TopicPrefix + "/" + string(t)
}

// Topics returns the topic of every supported sensor.
func Topics() []string {
	var topics []string
	for _, t := range AllSensorTypes() {
		topics = append(topics, t.Topic())
	}
	return topics
}
