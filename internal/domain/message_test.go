package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() domain.RecipientProfile {
	return domain.RecipientProfile{
		ContactID:         "c-001",
		Latitude:          -1.2864,
		Longitude:         36.8172,
		Language:          "SW",
		MaternalStatus:    domain.StatusAntenatal,
		MedicalConditions: "anaemia",
		Status:            "active",
		FacilityCode:      "F-17",
		FacilityName:      "Pumwani Maternity",
		PhoneNumber:       "+254700111222",
		LastAlertDate:     "2026-08-01",
	}
}

func TestNewLocationMessage(t *testing.T) {
	msg := domain.NewLocationMessage(testProfile(), "2026-08-29")

	assert.Equal(t, "c-001", msg.ContactID)
	assert.Equal(t, "2026-08-29", msg.TodayDate)
	assert.Equal(t, "sw", msg.Language, "language is normalized on the way out")
	assert.Equal(t, domain.StatusAntenatal, msg.MaternalStatus)
	assert.Equal(t, "+254700111222", msg.PhoneNumber)
}

func TestLocationMessage_Roundtrip(t *testing.T) {
	msg := domain.NewLocationMessage(testProfile(), "2026-08-29")

	out, err := msg.Outbound()
	require.NoError(t, err)
	assert.Equal(t, []byte(domain.LocationKey(msg.Latitude, msg.Longitude)), out.Key)
	assert.Equal(t, "resolver", out.Headers["stage"])
	assert.NotEmpty(t, out.Headers["published_at"])

	parsed, err := domain.ParseLocationMessage(out.Value)
	require.NoError(t, err)
	if diff := cmp.Diff(msg, parsed); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLocationMessage_MissingRequiredFields(t *testing.T) {
	_, err := domain.ParseLocationMessage([]byte("not json{{{"))
	assert.Error(t, err)

	_, err = domain.ParseLocationMessage([]byte(`{"today_date":"2026-08-29"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact_id")

	_, err = domain.ParseLocationMessage([]byte(`{"contact_id":"c-001"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "today_date")
}

func TestWeatherResult_WireFormat(t *testing.T) {
	result := domain.WeatherResult{
		LocationMessage: domain.NewLocationMessage(testProfile(), "2026-08-29"),
		TemperatureMax:  33.4,
	}

	out, err := result.Outbound()
	require.NoError(t, err)
	assert.Equal(t, []byte("c-001"), out.Key)
	assert.Equal(t, "evaluator", out.Headers["stage"])

	// The embedded location fields stay flat on the wire.
	var flat map[string]any
	require.NoError(t, json.Unmarshal(out.Value, &flat))
	assert.Equal(t, "c-001", flat["contact_id"])
	assert.Equal(t, 33.4, flat["temperature_max"])

	parsed, err := domain.ParseWeatherResult(out.Value)
	require.NoError(t, err)
	assert.Equal(t, result, parsed)
}

func TestDeliveryMessage_Roundtrip(t *testing.T) {
	msg := domain.DeliveryMessage{
		ContactID:         "c-001",
		Latitude:          -1.2864,
		Longitude:         36.8172,
		TodayDate:         "2026-08-29",
		TemperatureMax:    33.4,
		MaternalStatus:    domain.StatusAntenatal,
		MedicalConditions: "anaemia",
		AdviceText:        "Stay in the shade and drink water often.",
		Language:          "sw",
		PhoneNumber:       "+254700111222",
		FacilityName:      "Pumwani Maternity",
	}

	out, err := msg.Outbound()
	require.NoError(t, err)
	assert.Equal(t, "composer", out.Headers["stage"])

	parsed, err := domain.ParseDeliveryMessage(out.Value)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestParseDeliveryMessage_AllowsMissingPhone(t *testing.T) {
	// Missing phone/advice is the notifier's counted-failure case, not a
	// parse error.
	parsed, err := domain.ParseDeliveryMessage([]byte(`{"contact_id":"c-002"}`))
	require.NoError(t, err)
	assert.Empty(t, parsed.PhoneNumber)
	assert.Empty(t, parsed.AdviceText)
}
