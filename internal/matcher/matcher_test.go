package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

func TestMatch_ByLabel(t *testing.T) {
	m := New()
	key, source, _ := m.Match(models.FieldDescriptor{Label: "Email Address"})
	assert.Equal(t, "email", key)
	assert.Equal(t, interfaces.MatchSourceLabel, source)
}

func TestMatch_FallsBackToPlaceholder(t *testing.T) {
	m := New()
	key, source, _ := m.Match(models.FieldDescriptor{Placeholder: "First Name"})
	assert.Equal(t, "firstName", key)
	assert.Equal(t, interfaces.MatchSourcePlaceholder, source)
}

func TestMatch_FallsBackToAttributes(t *testing.T) {
	m := New()
	key, source, _ := m.Match(models.FieldDescriptor{Name: "lname"})
	assert.Equal(t, "lastName", key)
	assert.Equal(t, interfaces.MatchSourceAttribute, source)
}

func TestMatch_PrefersLabelOverPlaceholder(t *testing.T) {
	m := New()
	key, source, _ := m.Match(models.FieldDescriptor{
		Label:       "Email",
		Placeholder: "Your Phone Number",
	})
	assert.Equal(t, "email", key)
	assert.Equal(t, interfaces.MatchSourceLabel, source)
}

func TestMatch_NoMatch(t *testing.T) {
	m := New()
	key, source, handler := m.Match(models.FieldDescriptor{Label: "Favorite Color"})
	assert.Empty(t, key)
	assert.Equal(t, interfaces.MatchSourceNone, source)
	assert.Equal(t, models.HandlerNone, handler)
}

func TestMatch_ConfirmPasswordHandler(t *testing.T) {
	m := New()
	_, _, handler := m.Match(models.FieldDescriptor{
		Type:  "password",
		Label: "Confirm Password",
	})
	assert.Equal(t, models.HandlerConfirmPassword, handler)
}

func TestMatch_RequiredCheckHandler(t *testing.T) {
	m := New()
	_, _, handler := m.Match(models.FieldDescriptor{
		Type:  "checkbox",
		Label: "I agree to the Terms and Conditions",
	})
	assert.Equal(t, models.HandlerRequiredCheck, handler)
}

func TestMatch_SkipCheckHandler(t *testing.T) {
	m := New()
	_, _, handler := m.Match(models.FieldDescriptor{
		Type:  "checkbox",
		Label: "Subscribe to our newsletter",
	})
	assert.Equal(t, models.HandlerSkipCheck, handler)
}

func TestMatch_Deterministic(t *testing.T) {
	m := New()
	field := models.FieldDescriptor{Label: "Street Address", Type: "text"}

	key1, source1, handler1 := m.Match(field)
	key2, source2, handler2 := m.Match(field)

	assert.Equal(t, key1, key2)
	assert.Equal(t, source1, source2)
	assert.Equal(t, handler1, handler2)
}

func TestExtractFields_LabelByFor(t *testing.T) {
	html := `
	<form>
		<label for="email-field">Email Address</label>
		<input type="email" id="email-field" name="email" placeholder="you@example.com">
		<select id="country" name="country">
			<option value="us">United States</option>
			<option value="ca">Canada</option>
		</select>
		<button type="submit">Sign Up</button>
	</form>`

	fields, err := ExtractFields(html)
	assert.NoError(t, err)
	assert.Len(t, fields, 3)

	assert.Equal(t, "Email Address", fields[0].Label)
	assert.Equal(t, "#email-field", fields[0].Selector)
	assert.Equal(t, "email", fields[0].Type)

	assert.Equal(t, []string{"United States", "Canada"}, fields[1].Options)
}

func TestExtractFields_LabelByWrapping(t *testing.T) {
	html := `
	<form>
		<label>First Name <input type="text" name="fname"></label>
	</form>`

	fields, err := ExtractFields(html)
	assert.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Contains(t, fields[0].Label, "First Name")
}
