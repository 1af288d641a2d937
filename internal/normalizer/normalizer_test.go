package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DerivesName(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	assert.Equal(t, "Ada Lovelace", values["name"])
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	n := New(DefaultDefaults())
	values, defaulted := n.Normalize(map[string]interface{}{
		"email": "ada@example.com",
	})
	assert.Equal(t, "United States", values["country"])
	assert.Equal(t, "Mr", values["title"])
	assert.Equal(t, "SecurePass123!", values["password"])
	assert.True(t, defaulted["country"])
	assert.True(t, defaulted["title"])
}

func TestNormalize_DoesNotOverrideSuppliedValues(t *testing.T) {
	n := New(DefaultDefaults())
	values, defaulted := n.Normalize(map[string]interface{}{
		"country": "Canada",
	})
	assert.Equal(t, "Canada", values["country"])
	assert.False(t, defaulted["country"])
}

func TestNormalize_PhoneExtractsDigits(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"phone": "(555) 123-4567",
	})
	assert.Equal(t, "5551234567", values["phone_raw"])
	assert.Equal(t, "(555) 123-4567", values["phone"])
}

func TestNormalize_PhoneWithoutFormatting(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"phone": "5551234567",
	})
	assert.Equal(t, "5551234567", values["phone"])
	assert.Equal(t, "5551234567", values["phone_raw"])
}

func TestNormalize_ValidDOB(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"dob": "1990-05-14",
	})
	require.Equal(t, "1990", values["dob_year"])
	require.Equal(t, "05", values["dob_month"])
	require.Equal(t, "14", values["dob_day"])
	assert.Equal(t, "1990", values["dob_year_int"])
	assert.Equal(t, "5", values["dob_month_int"])
	assert.Equal(t, "14", values["dob_day_int"])
}

func TestNormalize_MalformedDOBYieldsNoKeys(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"dob": "not-a-date",
	})
	assert.Empty(t, values["dob_year"])
	assert.Empty(t, values["dob_month"])
	assert.Empty(t, values["dob_day"])
}

func TestNormalize_NestedObjectPromoted(t *testing.T) {
	n := New(DefaultDefaults())
	values, _ := n.Normalize(map[string]interface{}{
		"profile": map[string]interface{}{
			"email": "nested@example.com",
		},
	})
	assert.Equal(t, "nested@example.com", values["email"])
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(DefaultDefaults())
	first, _ := n.Normalize(map[string]interface{}{
		"firstName": "Grace",
		"lastName":  "Hopper",
		"email":     "grace@example.com",
	})

	asRaw := map[string]interface{}{}
	for k, v := range first {
		asRaw[k] = v
	}
	second, _ := n.Normalize(asRaw)

	assert.Equal(t, first, second)
}
