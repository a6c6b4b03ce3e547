package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InboundMessage is an unprocessed record fetched from a topic. Commit
// acknowledges the offset once the message's side effects are durable.
type InboundMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutboundMessage is the serialized form destined for a topic.
type OutboundMessage struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// LocationMessage represents one unique geographic point to be checked
// against the forecast provider, carrying its first-seen recipient's
// attributes forward.
type LocationMessage struct {
	Latitude          float64        `json:"latitude"`
	Longitude         float64        `json:"longitude"`
	TodayDate         string         `json:"today_date"`
	ContactID         string         `json:"contact_id"`
	Language          string         `json:"language"`
	MaternalStatus    MaternalStatus `json:"maternal_status"`
	MedicalConditions string         `json:"medical_conditions"`
	Status            string         `json:"status,omitempty"`
	FacilityCode      string         `json:"facility_code,omitempty"`
	FacilityName      string         `json:"facility_name,omitempty"`
	PhoneNumber       string         `json:"phone_number"`
	LastAlertDate     string         `json:"last_alert_date,omitempty"`
}

// NewLocationMessage builds the location message for a profile on a given
// calendar date.
func NewLocationMessage(p RecipientProfile, today string) LocationMessage {
	return LocationMessage{
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		TodayDate:         today,
		ContactID:         p.ContactID,
		Language:          NormalizeLanguage(p.Language),
		MaternalStatus:    p.MaternalStatus,
		MedicalConditions: p.MedicalConditions,
		Status:            p.Status,
		FacilityCode:      p.FacilityCode,
		FacilityName:      p.FacilityName,
		PhoneNumber:       p.PhoneNumber,
		LastAlertDate:     p.LastAlertDate,
	}
}

// WeatherResult is a location message that passed the threshold policy,
// enriched with the observed forecast value. Never persisted; it lives only
// on the result topic.
type WeatherResult struct {
	LocationMessage
	TemperatureMax float64 `json:"temperature_max"`
}

// DeliveryMessage is the terminal payload consumed by the notifier.
type DeliveryMessage struct {
	ContactID         string         `json:"contact_id"`
	Latitude          float64        `json:"latitude"`
	Longitude         float64        `json:"longitude"`
	TodayDate         string         `json:"today_date"`
	TemperatureMax    float64        `json:"temperature_max"`
	MaternalStatus    MaternalStatus `json:"maternal_status"`
	MedicalConditions string         `json:"medical_conditions"`
	AdviceText        string         `json:"advice_text"`
	Language          string         `json:"language"`
	PhoneNumber       string         `json:"phone_number"`
	FacilityName      string         `json:"facility_name,omitempty"`
}

// ParseLocationMessage deserializes a location message and validates the
// fields every downstream stage depends on.
func ParseLocationMessage(data []byte) (LocationMessage, error) {
	var msg LocationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return LocationMessage{}, fmt.Errorf("parse location message: %w", err)
	}
	if msg.ContactID == "" {
		return LocationMessage{}, errors.New("location message missing contact_id")
	}
	if msg.TodayDate == "" {
		return LocationMessage{}, errors.New("location message missing today_date")
	}
	return msg, nil
}

// ParseWeatherResult deserializes a weather-result message.
func ParseWeatherResult(data []byte) (WeatherResult, error) {
	var msg WeatherResult
	if err := json.Unmarshal(data, &msg); err != nil {
		return WeatherResult{}, fmt.Errorf("parse weather result: %w", err)
	}
	if msg.ContactID == "" {
		return WeatherResult{}, errors.New("weather result missing contact_id")
	}
	return msg, nil
}

// ParseDeliveryMessage deserializes a delivery message. Presence of phone
// number and advice text is the notifier's concern; it counts those as
// failures rather than parse errors.
func ParseDeliveryMessage(data []byte) (DeliveryMessage, error) {
	var msg DeliveryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return DeliveryMessage{}, fmt.Errorf("parse delivery message: %w", err)
	}
	return msg, nil
}

// Outbound serializes the message for the location topic, keyed by the
// location grid cell so co-located redeliveries land on one partition.
func (m LocationMessage) Outbound() (OutboundMessage, error) {
	return marshalOutbound(LocationKey(m.Latitude, m.Longitude), "resolver", m)
}

// Outbound serializes the result for the weather-result topic.
func (m WeatherResult) Outbound() (OutboundMessage, error) {
	return marshalOutbound(m.ContactID, "evaluator", m)
}

// Outbound serializes the delivery payload for the notify topic.
func (m DeliveryMessage) Outbound() (OutboundMessage, error) {
	return marshalOutbound(m.ContactID, "composer", m)
}

func marshalOutbound(key, stage string, v any) (OutboundMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("serialize %s message: %w", stage, err)
	}
	return OutboundMessage{
		Key:   []byte(key),
		Value: data,
		Headers: map[string]string{
			"stage":        stage,
			"published_at": clock.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}
